package sp

import "fmt"

// SAML 2.0 second-level status codes carried by protocol errors.
const (
	StatusRequestDenied      = "urn:oasis:names:tc:SAML:2.0:status:RequestDenied"
	StatusRequester          = "urn:oasis:names:tc:SAML:2.0:status:Requester"
	StatusRequestUnsupported = "urn:oasis:names:tc:SAML:2.0:status:RequestUnsupported"
)

// ProtocolError is raised by every forgery and consistency check on inbound
// SAML messages. It carries the status URN the caller renders back onto the
// wire instead of leaking the raw fault.
type ProtocolError struct {
	Status string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("saml: %s (%s): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("saml: %s (%s)", e.Reason, e.Status)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func denied(reason string) *ProtocolError {
	return &ProtocolError{Status: StatusRequestDenied, Reason: reason}
}

func deniedErr(reason string, err error) *ProtocolError {
	return &ProtocolError{Status: StatusRequestDenied, Reason: reason, Err: err}
}
