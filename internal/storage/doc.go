package storage

// Package storage persists job-run history so the status surface can show
// what ran, when, and how it exited across daemon restarts.
//
// It currently supports:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (optional build tag)
//
// Disabled by default; the daemon works fine without it.
