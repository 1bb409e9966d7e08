/*
Package ports defines the driven ports (interfaces) of tsw.

These interfaces decouple the engine from persistence, the process
multiplexer, the filesystem and outbound notification transports, so the
engine can be exercised against in-memory fakes and wired to real backends
(sqlite, tmux, redis) in production.

# Key Interfaces

  - InstanceStore / WorldStore: persistence of instances, worlds and events.
  - ProcessMultiplexer: starts, drives and kills the server process sessions.
  - FileStore: instance directory reservation and removal.
  - Provisioner / WorldArchiver: setup and world persistence collaborators.
  - Notifier: fire-and-forget broadcast of changes.
  - DistributedLocker: optional cross-process lock around instance mutations.
*/
package ports
