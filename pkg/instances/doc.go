/*
Package instances serializes every mutation of an instance.

Both the output interpreter and the execution engine change instances from
different goroutines. Instead of sharing an *domain.Instance between them,
each change is expressed as a Mutation that the Manager applies to a freshly
loaded copy while holding a per-instance lock (optionally backed by a
distributed lock). The result is persisted, with its event in the same unit
when there is one, and an immutable snapshot is published on the hub so
waiters wake up.
*/
package instances
