// Package serverrun contains the blocking entrypoint used by the labeld
// CLI to run a single-node server.
package serverrun
