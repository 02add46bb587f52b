package metadata

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"os"

	"github.com/crewjam/saml"
	"github.com/google/uuid"
)

// Locations are the two SP endpoints a registration message binds.
type Locations struct {
	ACS    string
	Logout string
}

// BuildDescriptor assembles the SP entity descriptor registered with the IdP:
// one signing and one encryption key descriptor over the SP certificate, the
// ACS endpoint on HTTP-POST and the logout endpoint on HTTP-Redirect.
func BuildDescriptor(entityID string, loc Locations, cert *x509.Certificate) *saml.EntityDescriptor {
	keyDescriptor := func(use string) saml.KeyDescriptor {
		return saml.KeyDescriptor{
			Use: use,
			KeyInfo: saml.KeyInfo{
				X509Data: saml.X509Data{
					X509Certificates: []saml.X509Certificate{{
						Data: base64.StdEncoding.EncodeToString(cert.Raw),
					}},
				},
			},
		}
	}

	truth := true
	return &saml.EntityDescriptor{
		EntityID: entityID,
		ID:       "_" + uuid.NewString(),
		SPSSODescriptors: []saml.SPSSODescriptor{
			{
				SSODescriptor: saml.SSODescriptor{
					RoleDescriptor: saml.RoleDescriptor{
						ProtocolSupportEnumeration: "urn:oasis:names:tc:SAML:2.0:protocol",
						KeyDescriptors: []saml.KeyDescriptor{
							keyDescriptor("signing"),
							keyDescriptor("encryption"),
						},
					},
					SingleLogoutServices: []saml.Endpoint{
						{
							Binding:  saml.HTTPRedirectBinding,
							Location: loc.Logout,
						},
					},
				},
				AuthnRequestsSigned:  &truth,
				WantAssertionsSigned: &truth,
				AssertionConsumerServices: []saml.IndexedEndpoint{
					{
						Binding:  saml.HTTPPostBinding,
						Location: loc.ACS,
						Index:    1,
					},
				},
			},
		},
	}
}

// MarshalDescriptor renders an entity descriptor as a standalone XML document.
func MarshalDescriptor(ed *saml.EntityDescriptor) ([]byte, error) {
	buf, err := xml.MarshalIndent(ed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return append([]byte(xml.Header), buf...), nil
}

// ReadLocations re-reads the ACS and logout locations from a persisted SP
// metadata document, for rebuilding metadata after a key regeneration.
func ReadLocations(path string) (Locations, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Locations{}, err
	}
	ed, err := ParseDescriptor(b)
	if err != nil {
		return Locations{}, err
	}
	m := New(nil, ed, nil)
	acs, err := m.FirstACS()
	if err != nil {
		return Locations{}, err
	}
	logout, err := m.FirstLogout()
	if err != nil {
		return Locations{}, err
	}
	return Locations{ACS: acs.Location, Logout: logout.Location}, nil
}
