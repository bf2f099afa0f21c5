// Package listsync keeps whitelists and ban lists consistent between the
// coordinator and a fleet of intermittently reachable Minecraft servers.
//
// Each (server, list type) pair owns an in-memory entry cache and an ordered
// pending-operation queue. A mutation request is applied remotely when the
// server's bridge is reachable and capable; otherwise it is compacted into
// the queue and persisted, so the caller's intent survives restarts and is
// replayed once the server returns. Compaction keeps at most one pending
// operation per target: a newer same-type request replaces the old one, and
// an opposite-type request cancels both.
//
// The package holds no timers of its own. An external scheduler drives the
// periodic passes: drain the queue, pull fresh remote state, and (for bans)
// sweep expired entries.
package listsync
