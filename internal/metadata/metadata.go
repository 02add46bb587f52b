package metadata

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"os"

	"github.com/crewjam/saml"
)

// ErrNotConfigured wraps every failure to select a descriptor, endpoint or
// certificate from loaded metadata. These are fatal configuration errors.
var ErrNotConfigured = errors.New("metadata not configured")

// Metadata holds the IdP and SP entity descriptors plus the SP private key.
// All protocol components read the wired endpoints and key material through
// the accessors below; a missing element is a configuration fault, never a
// request fault.
type Metadata struct {
	idp *saml.EntityDescriptor
	sp  *saml.EntityDescriptor
	key *rsa.PrivateKey
}

func New(idp, sp *saml.EntityDescriptor, key *rsa.PrivateKey) *Metadata {
	return &Metadata{idp: idp, sp: sp, key: key}
}

// Load reads the persisted IdP and SP metadata documents and the SP private
// key from disk.
func Load(idpPath, spPath, keyPath string) (*Metadata, error) {
	idp, err := LoadDescriptor(idpPath)
	if err != nil {
		return nil, fmt.Errorf("idp metadata: %w", err)
	}
	sp, err := LoadDescriptor(spPath)
	if err != nil {
		return nil, fmt.Errorf("sp metadata: %w", err)
	}
	key, err := LoadPrivateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("sp private key: %w", err)
	}
	return New(idp, sp, key), nil
}

func LoadDescriptor(path string) (*saml.EntityDescriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDescriptor(b)
}

func ParseDescriptor(b []byte) (*saml.EntityDescriptor, error) {
	var ed saml.EntityDescriptor
	if err := xml.Unmarshal(b, &ed); err != nil {
		return nil, fmt.Errorf("parse entity descriptor: %w", err)
	}
	return &ed, nil
}

func (m *Metadata) IdP() *saml.EntityDescriptor { return m.idp }
func (m *Metadata) SP() *saml.EntityDescriptor  { return m.sp }
func (m *Metadata) PrivateKey() *rsa.PrivateKey { return m.key }

func (m *Metadata) IdPEntityID() string { return m.idp.EntityID }
func (m *Metadata) SPEntityID() string  { return m.sp.EntityID }

func (m *Metadata) firstIdPDescriptor() (*saml.IDPSSODescriptor, error) {
	if m.idp == nil || len(m.idp.IDPSSODescriptors) == 0 {
		return nil, fmt.Errorf("%w: an IdP SSO descriptor must be registered", ErrNotConfigured)
	}
	return &m.idp.IDPSSODescriptors[0], nil
}

func (m *Metadata) firstSPDescriptor() (*saml.SPSSODescriptor, error) {
	if m.sp == nil || len(m.sp.SPSSODescriptors) == 0 {
		return nil, fmt.Errorf("%w: an SP SSO descriptor must be registered", ErrNotConfigured)
	}
	return &m.sp.SPSSODescriptors[0], nil
}

// FirstSSO returns the IdP's first single sign-on endpoint.
func (m *Metadata) FirstSSO() (saml.Endpoint, error) {
	idp, err := m.firstIdPDescriptor()
	if err != nil {
		return saml.Endpoint{}, err
	}
	if len(idp.SingleSignOnServices) == 0 {
		return saml.Endpoint{}, fmt.Errorf("%w: the IdP descriptor must have one SSO service registered", ErrNotConfigured)
	}
	return idp.SingleSignOnServices[0], nil
}

// IdPSLO returns the IdP's first single logout endpoint.
func (m *Metadata) IdPSLO() (saml.Endpoint, error) {
	idp, err := m.firstIdPDescriptor()
	if err != nil {
		return saml.Endpoint{}, err
	}
	if len(idp.SingleLogoutServices) == 0 {
		return saml.Endpoint{}, fmt.Errorf("%w: the IdP descriptor must have one logout service registered", ErrNotConfigured)
	}
	return idp.SingleLogoutServices[0], nil
}

// FirstACS returns the SP's first assertion consumer service endpoint.
func (m *Metadata) FirstACS() (saml.IndexedEndpoint, error) {
	sp, err := m.firstSPDescriptor()
	if err != nil {
		return saml.IndexedEndpoint{}, err
	}
	if len(sp.AssertionConsumerServices) == 0 {
		return saml.IndexedEndpoint{}, fmt.Errorf("%w: the SP descriptor must have one ACS service registered", ErrNotConfigured)
	}
	return sp.AssertionConsumerServices[0], nil
}

// FirstLogout returns the SP's first single logout endpoint.
func (m *Metadata) FirstLogout() (saml.Endpoint, error) {
	sp, err := m.firstSPDescriptor()
	if err != nil {
		return saml.Endpoint{}, err
	}
	if len(sp.SingleLogoutServices) == 0 {
		return saml.Endpoint{}, fmt.Errorf("%w: the SP descriptor must have one logout service registered", ErrNotConfigured)
	}
	return sp.SingleLogoutServices[0], nil
}

// WantAuthnRequestsSigned reports whether the IdP requires signed
// AuthnRequests. Absence of the flag means unsigned requests are accepted.
func (m *Metadata) WantAuthnRequestsSigned() bool {
	idp, err := m.firstIdPDescriptor()
	if err != nil || idp.WantAuthnRequestsSigned == nil {
		return false
	}
	return *idp.WantAuthnRequestsSigned
}

func (m *Metadata) IdPSigningCert() (*x509.Certificate, error) {
	idp, err := m.firstIdPDescriptor()
	if err != nil {
		return nil, err
	}
	return firstCertificate(idp.KeyDescriptors, "signing")
}

func (m *Metadata) IdPEncryptionCert() (*x509.Certificate, error) {
	idp, err := m.firstIdPDescriptor()
	if err != nil {
		return nil, err
	}
	return firstCertificate(idp.KeyDescriptors, "encryption")
}

func (m *Metadata) SPSigningCert() (*x509.Certificate, error) {
	sp, err := m.firstSPDescriptor()
	if err != nil {
		return nil, err
	}
	return firstCertificate(sp.KeyDescriptors, "signing")
}

func (m *Metadata) SPEncryptionCert() (*x509.Certificate, error) {
	sp, err := m.firstSPDescriptor()
	if err != nil {
		return nil, err
	}
	return firstCertificate(sp.KeyDescriptors, "encryption")
}
