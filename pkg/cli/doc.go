// Package cli holds the helpers shared by the llm-router commands: signal
// driven shutdown contexts, command error types, and output formatting for
// admin subcommands (text or JSON).
package cli
