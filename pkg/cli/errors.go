package cli

import "fmt"

// ConfigError reports a configuration problem surfaced by a command.
type ConfigError struct {
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Path, e.Message)
}

// NewConfigError builds a ConfigError for the given config path.
func NewConfigError(path, message string) *ConfigError {
	return &ConfigError{Path: path, Message: message}
}

// CommandError wraps a failure from a subcommand with its name.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err with the command name.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}
