// Package redis holds the Redis-backed shared state: the fixed-window rate limiter, the replay cache
// list and the last-hour message counter. Every client created by NewClient carries a metrics hook and
// a circuit breaker hook, so a failing Redis degrades to fail-open behaviour quickly.
package redis
