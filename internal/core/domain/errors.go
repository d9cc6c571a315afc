package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAgent  = errors.New("unknown agent")
	ErrInvalidStatus = errors.New("invalid status")
	ErrMissingID     = errors.New("missing agent_id")
	ErrMissingFields = errors.New("missing agent_id or action")
	ErrInvalidToken  = errors.New("invalid token")
)

// Wire error codes returned in action responses.
const (
	CodeInvalidAgent  = "INVALID_AGENT"
	CodeInvalidAction = "INVALID_ACTION"
	CodeInvalidStatus = "INVALID_STATUS"
	CodeInvalidToken  = "INVALID_TOKEN"
	CodeMissingFields = "Missing agent_id or action"
)

// ActionError is returned when an action cannot be applied. Known is
// false when the action is not a member of the action enum at all.
type ActionError struct {
	Action Action
	Status AgentStatus
	Known  bool
}

func (e *ActionError) Error() string {
	if !e.Known {
		return fmt.Sprintf("unknown action %q", string(e.Action))
	}
	return fmt.Sprintf("%s not valid for status %s", e.Action, e.Status)
}

// StatusError is returned by the registry when a record carries a status
// outside the enum. It matches ErrInvalidStatus with errors.Is.
type StatusError struct {
	Status AgentStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid status %q", string(e.Status))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrInvalidStatus
}

// IsUnknownAction reports whether err is an ActionError for an action
// outside the enum.
func IsUnknownAction(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae) && !ae.Known
}

// IsIllegalAction reports whether err is an ActionError for a known
// action that the current status does not allow.
func IsIllegalAction(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae) && ae.Known
}

// ErrorCode maps an error from the registry or gateway to the string
// carried in the "error" field of a failed action response.
func ErrorCode(err error) string {
	var (
		ae *ActionError
		se *StatusError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownAgent):
		return CodeInvalidAgent
	case errors.As(err, &ae):
		return CodeInvalidAction + ": " + ae.Error()
	case errors.Is(err, ErrMissingFields):
		return CodeMissingFields
	case errors.As(err, &se):
		return CodeInvalidStatus + ": " + string(se.Status)
	case errors.Is(err, ErrInvalidStatus):
		return CodeInvalidStatus
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	default:
		return err.Error()
	}
}
