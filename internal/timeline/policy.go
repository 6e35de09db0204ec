package timeline

import "context"

// recoveryPolicy bounds how often an operation may be retried after a
// recoverable failure. The bound is structural: run performs at most
// maxRecoveries recovery+retry rounds, so worst-case work per user action
// stays O(1).
type recoveryPolicy struct {
	maxRecoveries int
	recoverable   func(error) bool
}

// run executes op; each time it fails with a recoverable error and the
// budget allows, recover is invoked and op retried exactly once more. A
// failed recovery abandons the operation and returns the original error.
func (p recoveryPolicy) run(ctx context.Context, op func(context.Context) error, recover func(context.Context) error) error {
	err := op(ctx)
	for attempt := 0; err != nil && attempt < p.maxRecoveries && p.recoverable(err); attempt++ {
		if rerr := recover(ctx); rerr != nil {
			return err
		}
		err = op(ctx)
	}
	return err
}
