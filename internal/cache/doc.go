// Package cache provides the persistent store for downloaded animation clips.
// Records are keyed by source URL and hold the raw payload plus the time of
// the latest write. The Store type owns the lifecycle of a pluggable Backend
// (SQLite, plain files or memory) and initializes it lazily on first use.
package cache
