package token

import "fmt"

// Error is the single failure family every token fault normalizes into,
// carrying the remote code and message when the remote reported one.
type Error struct {
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("token: %s (code %d)", e.Message, e.Code)
	}
	return "token: " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }
