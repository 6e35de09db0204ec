package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-sync/internal/api"
	"chat-sync/internal/config"
	"chat-sync/internal/engine"
	"chat-sync/internal/identity"
	"chat-sync/internal/membership"
	"chat-sync/internal/observability"
	"chat-sync/internal/presence"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/timeline"
	"chat-sync/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	who, err := identity.FromToken(cfg.API.Token)
	if err != nil {
		log.Fatalf("failed to read identity from token: %v", err)
	}
	log.Printf("starting chat-sync user_id=%d username=%s", who.UserID, who.Username)

	ctx := context.Background()

	if cfg.Trace.Endpoint != "" {
		shutdown, err := observability.InitTracing(ctx, cfg.Trace.Endpoint, "chat-sync", cfg.Environment)
		if err != nil {
			log.Printf("tracing disabled: %v", err)
		} else {
			defer shutdown(ctx)
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	audit := telemetry.NewEmitter(publisher, cfg.AMQP.RoutingKey, "chat-sync", cfg.Environment, who.UserID)

	backend := api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	manager := transport.NewManager(cfg.Push.URL, who.UserID, who.Username)

	members := membership.NewController(backend, who.UserID)
	store := timeline.NewStore(backend, members, who.UserID, who.Username)
	tracker := presence.NewTracker(manager, who.UserID, cfg.Presence.TypingTTL)

	eng := engine.New(manager, members, store, tracker, audit, who.UserID)

	if err := eng.Bootstrap(ctx); err != nil {
		log.Fatalf("failed to load rooms: %v", err)
	}
	manager.Connect(ctx, cfg.API.Token)

	if cfg.Debug.Enabled {
		go runDebugServer(cfg.Debug.Addr, eng)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down")
	eng.Close()
}

func runDebugServer(addr string, eng *engine.Engine) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/debug/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, eng.Snapshot())
	})

	if err := router.Run(addr); err != nil {
		log.Printf("debug server error: %v", err)
	}
}
