package chat

import "fmt"

const (
	ErrorMissingInput = "ERROR_MISSING_INPUT"
	ErrorModel        = "ERROR_MODEL"
)

const (
	reasonMissingInput = "Missing prompts or conversation_history"
	reasonEmptyHistory = "Empty conversation_history after normalisation"
	reasonModel        = "Model API error"
)

// Error is a turn that ended without a reply. Reason is safe to show to the
// caller.
type Error struct {
	Code   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}
