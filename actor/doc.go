// Package actor hosts the per-session conversation actors and their
// supervisor. Each session is owned by exactly one actor: a goroutine that
// consumes turn requests from a mailbox one at a time, drives the
// completion/tool loop for each turn and persists every finalized turn as one
// atomic batch. The supervisor spawns actors on demand, restarts a crashed
// actor from the persisted log and shuts the whole tree down within a grace
// period.
package actor
