// Package scheduler owns every timer of a component in one place.
//
// Jobs are named. Every runs a job on a fixed interval, After runs it once
// after a delay. Scheduling a name that already exists replaces the previous
// job, which makes debounces trivial. Stop cancels all jobs and waits for
// running ones to return, so nothing fires after the owner is torn down.
//
//	s := scheduler.New(scheduler.WithLogger(log))
//	defer s.Stop()
//	_ = s.Every("heartbeat", 30*time.Second, func(ctx context.Context) { ... })
//	_ = s.After("signal:clear", 100*time.Millisecond, func(ctx context.Context) { ... })
//
// Job functions receive a context cancelled when the job is cancelled or the
// scheduler stops. Panics inside jobs are recovered and logged.
package scheduler
