package sp

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/crewjam/saml/xmlenc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jbarbier/sp-connect/internal/identity"
)

func makeAssertion(t *testing.T, principal *identity.Principal, role, sessionIndex string) *saml.Assertion {
	t.Helper()
	encoded, err := principal.Encode()
	require.NoError(t, err)

	return &saml.Assertion{
		ID:           "_assertion-1",
		Version:      "2.0",
		IssueInstant: saml.TimeNow(),
		Issuer: saml.Issuer{
			Format: nameIDFormatEntity,
			Value:  "https://idp.example",
		},
		AuthnStatements: []saml.AuthnStatement{{SessionIndex: sessionIndex}},
		AttributeStatements: []saml.AttributeStatement{{
			Attributes: []saml.Attribute{
				{
					Name:   attrUserEntity,
					Values: []saml.AttributeValue{{Type: "xs:string", Value: string(encoded)}},
				},
				{
					Name:   attrRole,
					Values: []saml.AttributeValue{{Type: "xs:string", Value: role}},
				},
			},
		}},
	}
}

func makeResponse(assertion *saml.Assertion) *saml.Response {
	return &saml.Response{
		ID:           "_response-1",
		Version:      "2.0",
		IssueInstant: saml.TimeNow(),
		Destination:  "https://sp.example/acs",
		Issuer: &saml.Issuer{
			Format: nameIDFormatEntity,
			Value:  "https://idp.example",
		},
		Status: saml.Status{
			StatusCode: saml.StatusCode{Value: saml.StatusSuccess},
		},
		Assertion: assertion,
	}
}

func serialize(t *testing.T, el *etree.Element) []byte {
	t.Helper()
	doc := etree.NewDocument()
	doc.SetRoot(el)
	raw, err := doc.WriteToBytes()
	require.NoError(t, err)
	return raw
}

func postResponse(t *testing.T, raw []byte, relayState string) *http.Request {
	t.Helper()
	form := url.Values{}
	form.Set("SAMLResponse", base64.StdEncoding.EncodeToString(raw))
	if relayState != "" {
		form.Set("RelayState", relayState)
	}
	req := httptest.NewRequest(http.MethodPost, "https://sp.example/acs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func receiveResponse(t *testing.T, f *fixture, raw []byte, relayState string) *InboundResponse {
	t.Helper()
	in, err := f.engine.ReceiveResponse(postResponse(t, raw, relayState))
	require.NoError(t, err)
	require.NotNil(t, in)
	return in
}

func TestValidateResponsePlainAssertion(t *testing.T) {
	f := newFixture(t, false)
	principal := &identity.Principal{Username: "alice", Email: "alice@example.com"}
	resp := makeResponse(makeAssertion(t, principal, "USER", "sess-1"))

	in := receiveResponse(t, f, serialize(t, resp.Element()), "abc123")
	require.NoError(t, f.engine.ValidateResponse(in, "abc123"))

	assertion := in.FirstAssertion()
	require.NotNil(t, assertion)

	got, err := f.engine.RetrieveUserFromAssertion(assertion)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "USER", got.CurrentRole)
	assert.Equal(t, "sess-1", got.SessionIndex)
}

func TestValidateResponseSigned(t *testing.T) {
	f := newFixture(t, false)
	resp := makeResponse(makeAssertion(t, &identity.Principal{Username: "alice"}, "USER", ""))

	signed := f.signAsIdP(t, resp.Element())
	in := receiveResponse(t, f, serialize(t, signed), "abc123")
	assert.NoError(t, f.engine.ValidateResponse(in, "abc123"))
}

func TestValidateResponseRejectsForeignSignature(t *testing.T) {
	f := newFixture(t, false)
	rogue := newFixture(t, false)
	resp := makeResponse(makeAssertion(t, &identity.Principal{Username: "alice"}, "USER", ""))

	signed := rogue.signAsIdP(t, resp.Element())
	in := receiveResponse(t, f, serialize(t, signed), "")

	err := f.engine.ValidateResponse(in, "")
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StatusRequestDenied, perr.Status)
}

func TestValidateResponseIssuerMismatch(t *testing.T) {
	f := newFixture(t, false)
	resp := makeResponse(nil)
	resp.Issuer.Value = "https://evil.example"

	in := receiveResponse(t, f, serialize(t, resp.Element()), "")
	err := f.engine.ValidateResponse(in, "")

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StatusRequestDenied, perr.Status)
}

func TestValidateResponseDestinationMismatch(t *testing.T) {
	f := newFixture(t, false)
	resp := makeResponse(nil)
	resp.Destination = "https://evil.example/acs"

	in := receiveResponse(t, f, serialize(t, resp.Element()), "")
	err := f.engine.ValidateResponse(in, "")

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StatusRequestDenied, perr.Status)
}

func TestValidateResponseRelayStateMismatch(t *testing.T) {
	f := newFixture(t, false)
	resp := makeResponse(nil)

	in := receiveResponse(t, f, serialize(t, resp.Element()), "other")
	err := f.engine.ValidateResponse(in, "abc123")

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StatusRequestDenied, perr.Status)
}

func TestValidateResponseRelayStateAbsenceTolerated(t *testing.T) {
	f := newFixture(t, false)
	resp := makeResponse(nil)

	in := receiveResponse(t, f, serialize(t, resp.Element()), "")
	assert.NoError(t, f.engine.ValidateResponse(in, "abc123"))

	in = receiveResponse(t, f, serialize(t, resp.Element()), "abc123")
	assert.NoError(t, f.engine.ValidateResponse(in, ""))
}

func encryptAssertion(t *testing.T, f *fixture, assertionEl *etree.Element) *etree.Element {
	t.Helper()
	plaintext := serialize(t, assertionEl)

	encryptor := xmlenc.OAEP()
	encryptor.BlockCipher = xmlenc.AES128CBC
	encryptor.DigestMethod = &xmlenc.SHA1
	encryptedDataEl, err := encryptor.Encrypt(f.spCert, plaintext, nil)
	require.NoError(t, err)
	encryptedDataEl.CreateAttr("Type", "http://www.w3.org/2001/04/xmlenc#Element")

	encryptedAssertionEl := etree.NewElement("saml:EncryptedAssertion")
	encryptedAssertionEl.CreateAttr("xmlns:saml", namespaceAssertion)
	encryptedAssertionEl.AddChild(encryptedDataEl)
	return encryptedAssertionEl
}

func TestValidateResponseDecryptsEncryptedAssertion(t *testing.T) {
	f := newFixture(t, false)
	principal := &identity.Principal{
		Username: "alice",
		Attributions: []identity.Attribution{
			{Application: "https://sp.example", Role: "USER"},
		},
	}
	assertion := makeAssertion(t, principal, "USER", "sess-9")

	signedAssertion := f.signAsIdP(t, assertion.Element())
	resp := makeResponse(nil)
	respEl := resp.Element()
	respEl.AddChild(encryptAssertion(t, f, signedAssertion))

	in := receiveResponse(t, f, serialize(t, respEl), "abc123")
	require.NoError(t, f.engine.ValidateResponse(in, "abc123"))

	require.Len(t, in.Assertions(), 1)
	got, err := f.engine.RetrieveUserFromAssertion(in.FirstAssertion())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "USER", got.CurrentRole)
	assert.Equal(t, "sess-9", got.SessionIndex)
	assert.Equal(t, principal.Attributions, got.Attributions)
}

func TestValidateResponseRejectsAssertionForWrongRecipient(t *testing.T) {
	f := newFixture(t, false)
	other := newFixture(t, false)
	assertion := makeAssertion(t, &identity.Principal{Username: "alice"}, "USER", "")

	// Encrypted to another SP's certificate, undecryptable with our key.
	resp := makeResponse(nil)
	respEl := resp.Element()
	respEl.AddChild(encryptAssertion(t, other, assertion.Element()))

	in := receiveResponse(t, f, serialize(t, respEl), "")
	err := f.engine.ValidateResponse(in, "")

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StatusRequestDenied, perr.Status)
}

func TestReceiveResponseRedirectBinding(t *testing.T) {
	f := newFixture(t, false)
	resp := makeResponse(nil)

	location, err := RedirectURL("https://sp.example/acs", "SAMLResponse", resp, "abc123")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, location, nil)
	in, err := f.engine.ReceiveResponse(req)
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "abc123", in.RelayState)
	assert.Equal(t, "https://idp.example", in.Response.Issuer.Value)
}

func TestReceiveResponseAbsentIsNotAnError(t *testing.T) {
	f := newFixture(t, false)

	req := httptest.NewRequest(http.MethodGet, "https://sp.example/acs", nil)
	in, err := f.engine.ReceiveResponse(req)
	assert.NoError(t, err)
	assert.Nil(t, in)
}

func TestValidateLogoutRequest(t *testing.T) {
	f := newFixture(t, false)

	lr := &saml.LogoutRequest{
		ID:           "_logout-1",
		Version:      "2.0",
		IssueInstant: saml.TimeNow(),
		Issuer:       &saml.Issuer{Format: nameIDFormatEntity, Value: "https://idp.example"},
		NameID:       &saml.NameID{Format: nameIDFormatUnspecified, Value: "alice"},
	}

	raw := serialize(t, lr.Element())
	form := url.Values{"SAMLRequest": {base64.StdEncoding.EncodeToString(raw)}}
	req := httptest.NewRequest(http.MethodPost, "https://sp.example/logout", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	in, err := f.engine.ReceiveLogoutRequest(req)
	require.NoError(t, err)
	require.NotNil(t, in)

	assert.NoError(t, f.engine.ValidateLogoutRequest(in, "alice"))

	err = f.engine.ValidateLogoutRequest(in, "bob")
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StatusRequestDenied, perr.Status)
}
