// Package watcher tails a file incrementally. It watches the parent directory
// with fsnotify and replays only the bytes appended since the last pass, one
// OnCharacter call per byte, to an injected Consumer.
package watcher
