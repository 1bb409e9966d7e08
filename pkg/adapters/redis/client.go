// Package redis coordinates several tsw processes through Redis: a
// distributed lock around instance mutations, a relay that carries hub
// snapshots between processes, and a notifier for external listeners.
package redis

import (
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key and channel.
const DefaultPrefix = "tsw:"

// NewClient creates a go-redis client.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

func instanceChannel(prefix, id string) string {
	return prefix + "instance:" + id
}

func hostChannel(prefix, hostID string) string {
	return prefix + "host:" + hostID
}

func notifyChannel(prefix string) string {
	return prefix + "notify"
}
