package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrResolution        = errors.New("selector resolution failed")
	ErrTransientAction   = errors.New("transient action failure")
	ErrCaptureFailure    = errors.New("state capture failed")
	ErrCriticalViolation = errors.New("critical constitution violation")
	ErrInvalidURL        = errors.New("invalid url")
	ErrInvalidSelector   = errors.New("invalid selector")
	ErrOracleUnavailable = errors.New("oracle unavailable")
)

type ResolutionReason string

const (
	ReasonNotFound  ResolutionReason = "not_found"
	ReasonAmbiguous ResolutionReason = "ambiguous"
)

type ResolutionFailure struct {
	Reason ResolutionReason
	Tried  []Strategy
	Target Target
}

func (e *ResolutionFailure) Error() string {
	tried := make([]string, len(e.Tried))
	for i, s := range e.Tried {
		tried[i] = string(s)
	}
	return fmt.Sprintf("resolve %q: %s (tried %s)", e.Target.String(), e.Reason, strings.Join(tried, ","))
}

func (e *ResolutionFailure) Is(target error) bool {
	return target == ErrResolution
}

// Transient marks err as retryable by the executor.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransientAction, err)
}

type ViolationError struct {
	Agent    string
	Failures []RuleFailure
}

func (e *ViolationError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Rule + ": " + f.Reason
	}
	return fmt.Sprintf("agent %s failed constitution validation: %s", e.Agent, strings.Join(msgs, ", "))
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrCriticalViolation
}
