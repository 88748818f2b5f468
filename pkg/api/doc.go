// Package api defines the public data model of the cabrun engine: the
// persisted run record and its step snapshots, the error taxonomy, the
// failure report raised when a run fails, the backend adapter contract
// with its mount-path conventions, the callable registry, and the
// observer hooks used for logging and metrics.
//
// Application code normally imports the root cabrun package, which
// re-exports everything here.
package api
