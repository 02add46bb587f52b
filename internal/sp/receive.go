package sp

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/http"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
)

// inbound is a raw SAML message lifted off the current request, before any
// validation.
type inbound struct {
	raw        []byte
	root       *etree.Element
	relayState string
}

// InboundResponse is a received samlp:Response plus the request context the
// validation checks need. Decrypted assertions are attached by
// ValidateResponse.
type InboundResponse struct {
	Response   *saml.Response
	RelayState string

	root      *etree.Element
	decrypted []*saml.Assertion
}

// Assertions returns the plaintext assertion, if any, followed by every
// assertion decrypted during validation.
func (r *InboundResponse) Assertions() []*saml.Assertion {
	var out []*saml.Assertion
	if r.Response.Assertion != nil {
		out = append(out, r.Response.Assertion)
	}
	return append(out, r.decrypted...)
}

// FirstAssertion returns the first attached assertion, or nil.
func (r *InboundResponse) FirstAssertion() *saml.Assertion {
	if all := r.Assertions(); len(all) > 0 {
		return all[0]
	}
	return nil
}

type InboundLogoutRequest struct {
	Request    *saml.LogoutRequest
	RelayState string
	root       *etree.Element
}

type InboundLogoutResponse struct {
	Response   *saml.LogoutResponse
	RelayState string
	root       *etree.Element
}

// receive lifts a SAML message off either binding of the current request:
// query parameters carry the HTTP-Redirect form (deflated), form fields the
// HTTP-POST form. A request with no recognizable message yields nil; the
// caller decides whether that is meaningful.
func receive(r *http.Request) (*inbound, error) {
	relayState := r.FormValue("RelayState")

	for _, param := range []string{"SAMLResponse", "SAMLRequest"} {
		if v := r.URL.Query().Get(param); v != "" {
			raw, err := decodeRedirectPayload(v)
			if err != nil {
				return nil, deniedErr("undecodable "+param, err)
			}
			return newInbound(raw, relayState)
		}
		if v := r.PostFormValue(param); v != "" {
			raw, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, deniedErr("undecodable "+param, err)
			}
			return newInbound(raw, relayState)
		}
	}
	return nil, nil
}

func decodeRedirectPayload(v string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, err
	}
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	return io.ReadAll(fr)
}

func newInbound(raw []byte, relayState string) (*inbound, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, deniedErr("unparsable message", err)
	}
	return &inbound{raw: raw, root: doc.Root(), relayState: relayState}, nil
}

// ReceiveResponse extracts a samlp:Response from the current request, or nil
// when the request carries none.
func (e *Engine) ReceiveResponse(r *http.Request) (*InboundResponse, error) {
	in, err := receive(r)
	if err != nil || in == nil {
		return nil, err
	}
	if in.root.Tag != "Response" {
		return nil, nil
	}
	var resp saml.Response
	if err := xml.Unmarshal(in.raw, &resp); err != nil {
		return nil, deniedErr("unparsable response", err)
	}
	return &InboundResponse{Response: &resp, RelayState: in.relayState, root: in.root}, nil
}

// ReceiveLogoutRequest extracts a samlp:LogoutRequest from the current
// request, or nil when the request carries none.
func (e *Engine) ReceiveLogoutRequest(r *http.Request) (*InboundLogoutRequest, error) {
	in, err := receive(r)
	if err != nil || in == nil {
		return nil, err
	}
	if in.root.Tag != "LogoutRequest" {
		return nil, nil
	}
	var req saml.LogoutRequest
	if err := xml.Unmarshal(in.raw, &req); err != nil {
		return nil, deniedErr("unparsable logout request", err)
	}
	return &InboundLogoutRequest{Request: &req, RelayState: in.relayState, root: in.root}, nil
}

// ReceiveLogoutResponse extracts a samlp:LogoutResponse from the current
// request, or nil when the request carries none.
func (e *Engine) ReceiveLogoutResponse(r *http.Request) (*InboundLogoutResponse, error) {
	in, err := receive(r)
	if err != nil || in == nil {
		return nil, err
	}
	if in.root.Tag != "LogoutResponse" {
		return nil, nil
	}
	var resp saml.LogoutResponse
	if err := xml.Unmarshal(in.raw, &resp); err != nil {
		return nil, deniedErr("unparsable logout response", err)
	}
	return &InboundLogoutResponse{Response: &resp, RelayState: in.relayState, root: in.root}, nil
}
