package identity

import "fmt"

// AttributionError reports a role or attribution the current principal does
// not hold, or the absence of an authenticated principal. It is surfaced to
// the embedding application as-is, never converted to wire output.
type AttributionError struct {
	Role        string
	Application string
	Reason      string
}

func (e *AttributionError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("attribution: %s", e.Reason)
	}
	return fmt.Sprintf("attribution: %s (role %q, application %q)", e.Reason, e.Role, e.Application)
}
