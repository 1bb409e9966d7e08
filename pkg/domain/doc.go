/*
Package domain contains the core domain models of tsw.

It defines the instance state machine as data: the closed set of states and
actions, which actions are legal in which state, and the ordered table of
output-line rules that move an instance between menu states. The package is
kept free of I/O so the tables can be tested in isolation.

# Key Entities

  - Instance: a managed server process plus its persisted state.
  - Event: an append-only record attached to an instance.
  - World: a game world referenced by instances through WorldID.
  - State / Action: the automaton and its inputs, see IsApplicable.
  - TransitionRule: maps a recognized output line to a new State.
*/
package domain
