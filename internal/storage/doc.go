// Package storage persists the two things the dispatch engine needs to
// remember: the user set (for admin fan-out and per-user preferences) and the
// delivery audit trail.
//
// Two drivers exist: a dependency-free file backend (JSON snapshot + JSONL
// journal) and a SQLite backend compiled in with the "sqlite" build tag.
// Storage is optional; with no driver configured the engine runs purely
// in-memory and admin fan-out requires an externally supplied repository.
package storage
