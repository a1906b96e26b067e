package competition

import (
	"errors"
	"fmt"
)

var (
	ErrSessionCommand      = errors.New("session command failed")
	ErrUnknownPlayer       = errors.New("unknown player")
	ErrInvalidSettingValue = errors.New("invalid setting value")
	ErrNotActive           = errors.New("no nightcup is currently active")
	ErrAlreadyActive       = errors.New("a nightcup is currently in progress")
	ErrInvalidTransition   = errors.New("invalid phase transition")
	ErrAlreadyQualified    = errors.New("player is already in the qualified list")
	ErrNotQualified        = errors.New("player is not in the qualified list")
	ErrAlreadyWhitelisted  = errors.New("player is already whitelisted")
	ErrNotWhitelisted      = errors.New("player was not whitelisted")
)

// CommandError reports a rejected session command.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() []error {
	return []error{ErrSessionCommand, e.Err}
}

// SettingError reports a value rejected for a setting.
type SettingError struct {
	Name   string
	Value  string
	Reason string
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("setting %s: invalid value %q: %s", e.Name, e.Value, e.Reason)
}

func (e *SettingError) Unwrap() error {
	return ErrInvalidSettingValue
}
