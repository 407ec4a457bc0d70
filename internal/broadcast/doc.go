// Package broadcast implements the real-time distribution core.
//
// The Registry admits subscribers under a global and a per-origin cap. The Broadcaster fans one serialized
// event out to a stable snapshot of the registry, gating every send through the rate limiter and removing
// failed connections only after the enumeration completes. Each attached connection runs its own liveness
// loop (Monitor) and owns a writer goroutine, so a stalled client never blocks another client's heartbeat
// or delivery. Hub ties these together for one connection's lifetime: admit, replay, monitor, remove.
package broadcast
