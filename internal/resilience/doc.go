// Package resilience groups the fault tolerance helpers around channel
// providers and the database.
//
//   - circuitbreaker: one gobreaker per channel provider, and a guarded
//     database handle for the repositories
//   - retry: a few quick repeats within one provider call or startup step
//
// Usage:
//
//	b := circuitbreaker.New(circuitbreaker.ProviderConfig("sms"))
//	err := b.Call(func() error {
//	    _, err := provider.Send(ctx, msg)
//	    return err
//	})
//
//	err := retry.Do(ctx, retry.ProviderPolicy(), func() error {
//	    return postOnce(ctx, req)
//	})
package resilience
