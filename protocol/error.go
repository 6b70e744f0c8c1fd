package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is the structured failure payload carried by error envelopes and
// error responses. It implements the error interface so exchange callers
// receive backend failures as ordinary Go errors.
type Error struct {
	StatusCode  int    `json:"status"`
	Code        string `json:"error"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
	HRef        string `json:"href,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

// DecodeError extracts the structured error from an error envelope. When the
// value does not parse as an error payload, a generic error carrying the
// envelope's status code is returned so the failure is never swallowed.
func DecodeError(env *Envelope) *Error {
	var pe Error
	if len(env.Value) > 0 && json.Unmarshal(env.Value, &pe) == nil && (pe.Code != "" || pe.Message != "") {
		if pe.StatusCode == 0 {
			pe.StatusCode = env.Status
		}
		return &pe
	}
	return &Error{
		StatusCode: env.Status,
		Message:    http.StatusText(env.Status),
	}
}
