// Package sp implements the service-provider half of the SAML 2.0 browser
// SSO and single logout profiles: building and signing outbound requests,
// receiving inbound messages on either HTTP binding, and the forgery checks
// run on everything the IdP sends back.
package sp

import (
	"time"

	"github.com/crewjam/saml"
	"github.com/google/uuid"

	"jbarbier/sp-connect/internal/metadata"
)

// Engine drives the SAML exchanges against one IdP. It only reads endpoint
// and key material through the metadata accessors; it holds no back-reference
// to configuration.
type Engine struct {
	md *metadata.Metadata
}

func NewEngine(md *metadata.Metadata) *Engine {
	return &Engine{md: md}
}

func (e *Engine) Metadata() *metadata.Metadata { return e.md }

func newID() string {
	return "_" + uuid.NewString()
}

// BuildAuthnRequest assembles a fresh AuthnRequest for the IdP's first SSO
// endpoint together with its single-use relay-state. The request is signed
// with the SP key iff the IdP descriptor demands signed requests.
func (e *Engine) BuildAuthnRequest() (*saml.AuthnRequest, string, error) {
	acs, err := e.md.FirstACS()
	if err != nil {
		return nil, "", err
	}
	sso, err := e.md.FirstSSO()
	if err != nil {
		return nil, "", err
	}

	req := &saml.AuthnRequest{
		ID:                          newID(),
		Version:                     "2.0",
		IssueInstant:                saml.TimeNow(),
		Destination:                 sso.Location,
		ProtocolBinding:             acs.Binding,
		AssertionConsumerServiceURL: acs.Location,
		Issuer: &saml.Issuer{
			Format: nameIDFormatEntity,
			Value:  e.md.SPEntityID(),
		},
	}

	if e.md.WantAuthnRequestsSigned() {
		if err := e.signAuthnRequest(req); err != nil {
			return nil, "", err
		}
	}

	return req, uuid.NewString(), nil
}

// PrepareLogoutRequest builds and signs an outbound LogoutRequest terminating
// the IdP session identified by nameID and sessionIndex.
func (e *Engine) PrepareLogoutRequest(nameID, sessionIndex string) (*saml.LogoutRequest, string, error) {
	slo, err := e.md.IdPSLO()
	if err != nil {
		return nil, "", err
	}

	notOnOrAfter := saml.TimeNow().Add(5 * time.Minute)
	req := &saml.LogoutRequest{
		ID:           newID(),
		Version:      "2.0",
		IssueInstant: saml.TimeNow(),
		NotOnOrAfter: &notOnOrAfter,
		Destination:  slo.Location,
		Issuer: &saml.Issuer{
			Format: nameIDFormatEntity,
			Value:  e.md.SPEntityID(),
		},
		NameID: &saml.NameID{
			Format: nameIDFormatUnspecified,
			Value:  nameID,
		},
	}
	if sessionIndex != "" {
		req.SessionIndex = &saml.SessionIndex{Value: sessionIndex}
	}

	if err := e.signLogoutRequest(req); err != nil {
		return nil, "", err
	}
	return req, uuid.NewString(), nil
}

// PrepareLogoutResponse builds and signs the success LogoutResponse answering
// an IdP-initiated LogoutRequest. The IdP's response location is preferred
// over its request location when both are declared.
func (e *Engine) PrepareLogoutResponse(inResponseTo string) (*saml.LogoutResponse, error) {
	slo, err := e.md.IdPSLO()
	if err != nil {
		return nil, err
	}
	destination := slo.ResponseLocation
	if destination == "" {
		destination = slo.Location
	}

	resp := &saml.LogoutResponse{
		ID:           newID(),
		Version:      "2.0",
		IssueInstant: saml.TimeNow(),
		Destination:  destination,
		InResponseTo: inResponseTo,
		Issuer: &saml.Issuer{
			Format: nameIDFormatEntity,
			Value:  e.md.SPEntityID(),
		},
		Status: saml.Status{
			StatusCode: saml.StatusCode{Value: saml.StatusSuccess},
		},
	}

	if err := e.signLogoutResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
