// Package assoc implements the encrypted profile-association handshake: the
// IdP forwards the user's own credentials to the SP inside an asymmetric
// envelope, the embedding application authenticates them by its own means and
// answers with the role the principal is granted.
package assoc

import (
	"encoding/json"
	"fmt"
)

// RequestMessage is an inbound profile-association message. Concrete variants
// are registered in the variant table and self-validate at construction.
type RequestMessage interface {
	// Roles returns the roles the IdP offers for this association.
	Roles() []string
}

// ResponseMessage answers a profile association with the granted role. The
// role must be drawn from the request's offered roles.
type ResponseMessage struct {
	Role string `json:"role"`
}

// Callback is supplied by the embedding application to resolve an association
// request into a response.
type Callback func(RequestMessage) (*ResponseMessage, error)

// variant constructs a concrete message from the decrypted payload when its
// discriminator fields are present.
type variant struct {
	matches func(map[string]json.RawMessage) bool
	build   func([]byte) (RequestMessage, error)
}

// variants is the registered message table, tried in order. New message kinds
// extend this table rather than inspecting types at the call sites.
var variants = []variant{
	{
		matches: func(fields map[string]json.RawMessage) bool {
			_, hasUsername := fields["username"]
			_, hasPassword := fields["password"]
			return hasUsername && hasPassword
		},
		build: newUsernamePasswordMessage,
	},
}

// DecodeRequest hydrates the decrypted payload into its registered variant.
func DecodeRequest(payload []byte) (RequestMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, &Error{Code: 400, Message: fmt.Sprintf("json decode error: %v", err)}
	}
	for _, v := range variants {
		if v.matches(fields) {
			return v.build(payload)
		}
	}
	return nil, &Error{Code: 400, Message: "unable to hydrate a profile association message from the payload provided"}
}

// UsernamePasswordMessage is the credential variant currently emitted by the
// IdP.
type UsernamePasswordMessage struct {
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	OfferedRoles []string `json:"roles"`
}

func newUsernamePasswordMessage(payload []byte) (RequestMessage, error) {
	var m UsernamePasswordMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, &Error{Code: 400, Message: fmt.Sprintf("json decode error: %v", err)}
	}
	if m.Username == "" {
		return nil, &Error{Code: 400, Message: "username must be provided"}
	}
	if m.Password == "" {
		return nil, &Error{Code: 400, Message: "password must be provided"}
	}
	if len(m.OfferedRoles) == 0 {
		return nil, &Error{Code: 400, Message: "roles must be provided"}
	}
	return &m, nil
}

func (m *UsernamePasswordMessage) Roles() []string { return m.OfferedRoles }
