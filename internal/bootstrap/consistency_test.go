package bootstrap

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/crewjam/saml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jbarbier/sp-connect/internal/config"
	"jbarbier/sp-connect/internal/metadata"
)

// fakeIdP serves the metadata document and admin API of an identity provider.
type fakeIdP struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
	srv  *httptest.Server

	requests   atomic.Int64
	subscribed atomic.Int64
	lastSub    *SubscribeMessage

	// configuration answered on GET /api/sp, nil means unknown entity
	registered *SPConfigurationMessage
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, cert := testKeyPair(t, "idp.example")
	f := &fakeIdP{key: key, cert: cert}

	mux := http.NewServeMux()
	mux.HandleFunc("/idp.xml", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		idp := &saml.EntityDescriptor{
			EntityID: f.srv.URL,
			IDPSSODescriptors: []saml.IDPSSODescriptor{{
				SSODescriptor: saml.SSODescriptor{
					RoleDescriptor: saml.RoleDescriptor{
						KeyDescriptors: []saml.KeyDescriptor{{
							Use: "encryption",
							KeyInfo: saml.KeyInfo{
								X509Data: saml.X509Data{
									X509Certificates: []saml.X509Certificate{{
										Data: base64.StdEncoding.EncodeToString(cert.Raw),
									}},
								},
							},
						}},
					},
				},
				SingleSignOnServices: []saml.Endpoint{{
					Binding:  saml.HTTPRedirectBinding,
					Location: f.srv.URL + "/sso",
				}},
			}},
		}
		raw, err := metadata.MarshalDescriptor(idp)
		require.NoError(t, err)
		_, _ = w.Write(raw)
	})
	mux.HandleFunc("/api/sp", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		var msg Message = NewErrorMessage("unknown entity " + r.URL.Query().Get("entityID"))
		if f.registered != nil {
			msg = f.registered
		}
		body, err := EncodeSigned(f.key, f.cert, msg)
		require.NoError(t, err)
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/api/sp/subscribe", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		msg, err := DecodeEncrypted(f.key, body)
		require.NoError(t, err)
		sub, ok := msg.(*SubscribeMessage)
		require.True(t, ok)
		f.lastSub = sub
		f.subscribed.Add(1)
		w.WriteHeader(http.StatusCreated)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func testConfig(t *testing.T, idp *fakeIdP) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SP.EntityID = "https://sp.example"
	cfg.SP.Name = "Test SP"
	cfg.IdP.EntityID = idp.srv.URL
	cfg.Metadata.BaseDir = t.TempDir()
	cfg.Metadata.PrivateKeyFile = "sp_key.pem"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestValidateRegistersUnknownEntity(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := testConfig(t, idp)

	ready, err := NewConsistency(cfg).Validate()
	require.NoError(t, err)
	assert.False(t, ready, "a fresh subscription is not ready to serve")

	// Key and IdP metadata are persisted, SP metadata waits for approval.
	_, err = os.Stat(cfg.PrivateKeyPath())
	assert.NoError(t, err)
	_, err = os.Stat(cfg.IdPMetadataPath())
	assert.NoError(t, err)
	_, err = os.Stat(cfg.SPMetadataPath())
	assert.Error(t, err)

	require.EqualValues(t, 1, idp.subscribed.Load())
	require.NotNil(t, idp.lastSub)
	assert.Equal(t, "https://sp.example", idp.lastSub.EntityID)
	assert.Equal(t, "Test SP", idp.lastSub.Name)
	assert.Equal(t, "https://sp.example/connect/admin", idp.lastSub.AdminPath)
}

func TestValidatePersistsRegisteredConfiguration(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := testConfig(t, idp)

	spXML := `<?xml version="1.0"?><EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://sp.example"></EntityDescriptor>`
	idp.registered = NewSPConfigurationMessage(spXML)

	ready, err := NewConsistency(cfg).Validate()
	require.NoError(t, err)
	assert.True(t, ready)

	got, err := os.ReadFile(cfg.SPMetadataPath())
	require.NoError(t, err)
	assert.Equal(t, spXML, string(got))
	assert.EqualValues(t, 0, idp.subscribed.Load())
}

func TestValidateIsIdempotent(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := testConfig(t, idp)
	idp.registered = NewSPConfigurationMessage("<EntityDescriptor/>")

	ready, err := NewConsistency(cfg).Validate()
	require.NoError(t, err)
	require.True(t, ready)

	keyBytes, err := os.ReadFile(cfg.PrivateKeyPath())
	require.NoError(t, err)
	before := idp.requests.Load()

	ready, err = NewConsistency(cfg).Validate()
	require.NoError(t, err)
	assert.True(t, ready)

	assert.Equal(t, before, idp.requests.Load(), "a populated dir must not touch the IdP")
	after, err := os.ReadFile(cfg.PrivateKeyPath())
	require.NoError(t, err)
	assert.Equal(t, keyBytes, after, "the key must not be regenerated")
}

func TestValidatePendingSubscriptionDoesNotResubscribe(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := testConfig(t, idp)
	idp.registered = &SPConfigurationMessage{Type: kindSPConfiguration, ID: "42"}

	ready, err := NewConsistency(cfg).Validate()
	require.NoError(t, err)
	assert.False(t, ready)
	assert.EqualValues(t, 0, idp.subscribed.Load())
}

func TestCreatePrivateKeyRotates(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := testConfig(t, idp)
	c := NewConsistency(cfg)

	first, err := c.CreatePrivateKey()
	require.NoError(t, err)
	second, err := c.CreatePrivateKey()
	require.NoError(t, err)
	assert.NotEqual(t, first.N, second.N)

	persisted, err := metadata.LoadPrivateKey(cfg.PrivateKeyPath())
	require.NoError(t, err)
	assert.Equal(t, second.N, persisted.N)

	info, err := os.Stat(cfg.PrivateKeyPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Nested key locations are created on demand.
	cfg.Metadata.PrivateKeyFile = filepath.Join("keys", "sp_key.pem")
	_, err = c.CreatePrivateKey()
	require.NoError(t, err)
	_, err = os.Stat(cfg.PrivateKeyPath())
	assert.NoError(t, err)
}
