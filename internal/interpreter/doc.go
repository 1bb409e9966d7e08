// Package interpreter recognizes menu prompts, numbered options and mod
// loading lines in the output of a server process and applies them to the
// instance through instances.Manager.
package interpreter
