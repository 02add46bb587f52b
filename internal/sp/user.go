package sp

import (
	"github.com/crewjam/saml"

	"jbarbier/sp-connect/internal/identity"
)

const (
	// attrUserEntity carries the JSON-encoded principal the IdP embeds in its
	// assertions.
	attrUserEntity = "user_entity"
	// attrRole is the standard role claim the IdP uses for the active role.
	attrRole = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

// RetrieveUserFromAssertion scans the assertion's attribute statements for
// the structured principal attribute and the role claim. It returns nil when
// the assertion carries no principal; the caller decides whether that is an
// error.
func (e *Engine) RetrieveUserFromAssertion(assertion *saml.Assertion) (*identity.Principal, error) {
	var principal *identity.Principal
	var role string

	for _, statement := range assertion.AttributeStatements {
		for _, attr := range statement.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			switch attr.Name {
			case attrUserEntity:
				p, err := identity.Decode([]byte(attr.Values[0].Value))
				if err != nil {
					return nil, deniedErr("malformed principal attribute", err)
				}
				principal = p
			case attrRole:
				role = attr.Values[0].Value
			}
		}
	}

	if principal == nil {
		return nil, nil
	}
	principal.CurrentRole = role

	if len(assertion.AuthnStatements) > 0 {
		principal.SessionIndex = assertion.AuthnStatements[0].SessionIndex
	}
	return principal, nil
}
