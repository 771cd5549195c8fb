// Package cli holds helpers shared by the tokenmeter commands: error
// types with exit codes, text and JSON output, batch progress and signal
// handling.
package cli
