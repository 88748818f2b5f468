// Package persistence owns the two durable artifacts of a pipeline run:
// the JSON resume file the engine restarts from, and an optional SQLite
// history of runs and steps kept for operators.
package persistence
