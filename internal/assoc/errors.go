package assoc

import "fmt"

// Error is a protocol-level association failure that is reported back to the
// IdP over the encrypted channel with its HTTP status code. Application level
// failures (misconfiguration, callback bugs) are plain errors and never leave
// the SP.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("profile association error %d: %s", e.Code, e.Message)
}
