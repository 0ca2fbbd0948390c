// Package redis implements the Redis-backed adapters: the latest-reading
// cache, the notification debouncer, and the client hooks for metrics and
// circuit breaking.
package redis
