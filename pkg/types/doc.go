// Package types defines the core data structures shared by the load engine.
//
// This package contains the plain data types used throughout loadgen,
// including:
//   - Stages and threshold definitions
//   - Per-request and per-iteration results
//   - The final summary report
package types
