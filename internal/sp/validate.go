package sp

import (
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/crewjam/saml/xmlenc"
)

// ValidateResponse runs the ordered forgery checks on an inbound Response:
// issuer, destination, relay-state, response signature, then decryption and
// inner-signature verification of every encrypted assertion. Decrypted
// assertions are attached to the response. Every failure is a ProtocolError.
func (e *Engine) ValidateResponse(in *InboundResponse, storedRelayState string) error {
	if in.Response.Issuer == nil || in.Response.Issuer.Value != e.md.IdPEntityID() {
		return denied("response issuer does not match the IdP entity id")
	}

	acs, err := e.md.FirstACS()
	if err != nil {
		return err
	}
	if in.Response.Destination != acs.Location {
		return denied("response destination does not match the ACS location")
	}

	// Absence of a relay-state on either side is tolerated; a mismatch between
	// two present values is not.
	if storedRelayState != "" && in.RelayState != "" && in.RelayState != storedRelayState {
		return denied("response relay-state does not match the stored value")
	}

	if hasSignature(in.root) {
		if err := e.verifySignature(in.root); err != nil {
			return deniedErr("response signature verification failed", err)
		}
	}

	return e.decryptAssertions(in)
}

func (e *Engine) decryptAssertions(in *InboundResponse) error {
	for _, encEl := range in.root.FindElements("//EncryptedAssertion") {
		dataEl := encEl.FindElement("./EncryptedData")
		if dataEl == nil {
			return denied("encrypted assertion carries no EncryptedData")
		}
		plaintext, err := xmlenc.Decrypt(e.md.PrivateKey(), dataEl)
		if err != nil {
			return deniedErr("assertion decryption failed", err)
		}

		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(plaintext); err != nil {
			return deniedErr("decrypted assertion is unparsable", err)
		}
		if hasSignature(doc.Root()) {
			if err := e.verifySignature(doc.Root()); err != nil {
				return deniedErr("assertion signature verification failed", err)
			}
		}

		var assertion saml.Assertion
		if err := xml.Unmarshal(plaintext, &assertion); err != nil {
			return deniedErr("decrypted assertion is unparsable", err)
		}
		in.decrypted = append(in.decrypted, &assertion)
	}
	return nil
}

// ValidateLogoutRequest checks an IdP-initiated LogoutRequest: issuer, the
// NameID against the current principal's username, and the signature when one
// is present.
func (e *Engine) ValidateLogoutRequest(in *InboundLogoutRequest, username string) error {
	if in.Request.Issuer == nil || in.Request.Issuer.Value != e.md.IdPEntityID() {
		return denied("logout request issuer does not match the IdP entity id")
	}
	if in.Request.NameID == nil || in.Request.NameID.Value != username {
		return denied("logout request NameID does not match the current principal")
	}
	if hasSignature(in.root) {
		if err := e.verifySignature(in.root); err != nil {
			return deniedErr("logout request signature verification failed", err)
		}
	}
	return nil
}

// ValidateLogoutResponse checks an inbound LogoutResponse: issuer, plus the
// signature when one is present.
func (e *Engine) ValidateLogoutResponse(in *InboundLogoutResponse) error {
	if in.Response.Issuer == nil || in.Response.Issuer.Value != e.md.IdPEntityID() {
		return denied("logout response issuer does not match the IdP entity id")
	}
	if hasSignature(in.root) {
		if err := e.verifySignature(in.root); err != nil {
			return deniedErr("logout response signature verification failed", err)
		}
	}
	return nil
}

// ErrorResponse renders the samlp:Response a protocol error degrades to on
// the wire.
func ErrorResponse(issuer string, perr *ProtocolError) ([]byte, error) {
	resp := &saml.Response{
		ID:           newID(),
		Version:      "2.0",
		IssueInstant: saml.TimeNow(),
		Issuer: &saml.Issuer{
			Format: nameIDFormatEntity,
			Value:  issuer,
		},
		Status: saml.Status{
			StatusCode: saml.StatusCode{Value: perr.Status},
		},
	}
	raw, err := marshalMessage(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal error response: %w", err)
	}
	return raw, nil
}
