// Package resilience retries operations against flaky backends with
// exponential backoff.
//
//	err := resilience.Do(ctx, resilience.DefaultPolicy(), func(ctx context.Context) error {
//	    return client.Ping(ctx)
//	})
//
// Errors that are AppErrors retry only when marked Retryable; context
// errors never retry.
package resilience
