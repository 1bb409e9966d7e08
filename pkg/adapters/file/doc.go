// Package file provides the filesystem adapters: instance directories
// (ports.FileStore) and world archives (ports.WorldArchiver), both on afero.
package file
