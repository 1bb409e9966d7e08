/*
Package tsw supervises long-running game-server processes that are driven
through an interactive text menu.

An instance is started inside a terminal multiplexer. Its state is inferred
from the bytes appended to its output file, and it is steered by sending
synthetic keystrokes. Every instance follows a finite state machine (see
package domain) whose legal actions are checked both here, when an action is
requested, and by the per-host dispatch loop (package runner) that applies it.

# Usage

The Controller is the boundary used by the CLI and by embedding programs. It
only records intent; the dispatch loop of the owning host carries it out.

	store := memory.NewStore()
	ctrl := tsw.NewController(instances.NewManager(store), store)

	inst, err := ctrl.Define(ctx, tsw.InstanceSpec{HostID: "box-1", Name: "alpha"})
	if err != nil {
		log.Fatal(err)
	}
	// inst is DEFINED with SET_UP pending. After setup:
	_, err = ctrl.Request(ctx, inst.ID, domain.ActionBootUp)

Requesting an action that the current state does not allow fails with a
*domain.PreconditionError and leaves the instance untouched.
*/
package tsw
