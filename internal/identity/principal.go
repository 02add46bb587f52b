package identity

import (
	"encoding/json"
	"strings"
)

// Attribution is a (application, role) grant carried by a principal. It
// determines which roles the principal may assume on which target application.
type Attribution struct {
	Application   string `json:"application"`
	Role          string `json:"role"`
	LocalUsername string `json:"local_username,omitempty"`
}

// Principal is the authenticated user record extracted from an IdP assertion.
type Principal struct {
	Username      string        `json:"user_name"`
	Email         string        `json:"email,omitempty"`
	FirstName     string        `json:"first_name,omitempty"`
	LastName      string        `json:"last_name,omitempty"`
	CurrentRole   string        `json:"current_role,omitempty"`
	LocalUsername string        `json:"local_username,omitempty"`
	Attributions  []Attribution `json:"attributions,omitempty"`

	// SessionIndex correlates this login with the IdP session for single
	// logout. It is set from the assertion's AuthnStatement.
	SessionIndex string `json:"session_index,omitempty"`
}

func Decode(data []byte) (*Principal, error) {
	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Principal) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// AttributionFor returns the attribution matching (role, application) exactly,
// if the principal holds one.
func (p *Principal) AttributionFor(role, application string) (Attribution, bool) {
	for _, a := range p.Attributions {
		if a.Role == role && a.Application == application {
			return a, true
		}
	}
	return Attribution{}, false
}

// ParseRoleString decodes the compound "application:role:localUsername" form a
// role claim may take. Plain role strings come back with only Role set.
func ParseRoleString(s string) Attribution {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) == 3 {
		return Attribution{Application: parts[0], Role: parts[1], LocalUsername: parts[2]}
	}
	return Attribution{Role: s}
}
