/*
Package runner implements the per-host dispatch loop.

The loop owns every instance whose HostID matches its own. It repeatedly picks
the instance with a pending action, applies it through an Engine and records
the outcome. Only one action is in flight per host.

# Failure classification

  - Precondition: the state is left as is and the pending action is dropped.
  - Invalid: the instance becomes INVALID and can only be deleted.
  - Timeout, process and unclassified failures: the instance becomes BROKEN.
  - Interrupted: the instance becomes BROKEN and Run returns the cancellation.

Every failure is stored as exactly one event together with the instance.

# Usage

	r := runner.New(
		runner.WithHostID("host-1"),
		runner.WithManager(manager),
		runner.WithEngine(engine),
		runner.WithLogger(logger),
	)

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
*/
package runner
