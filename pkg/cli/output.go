package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat selects how admin subcommands render results.
type OutputFormat string

const (
	// FormatText renders results as plain text.
	FormatText OutputFormat = "text"
	// FormatJSON renders results as indented JSON.
	FormatJSON OutputFormat = "json"
)

// Formatter renders a command result to a writer.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextFormatter prints the value with fmt, one result per line.
type TextFormatter struct{}

// FormatTo writes data as plain text.
func (TextFormatter) FormatTo(w io.Writer, data any) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter prints indented JSON.
type JSONFormatter struct{}

// FormatTo writes data as indented JSON.
func (JSONFormatter) FormatTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// NewFormatter returns the formatter for the given format, defaulting to
// text for anything unrecognized.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return JSONFormatter{}
	}
	return TextFormatter{}
}
