package metadata

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/crewjam/saml"
)

// LoadPrivateKey reads an RSA private key in PKCS#8 or PKCS#1 PEM form.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(b)
}

func ParsePrivateKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	kb, _ := pem.Decode(keyPEM)
	if kb == nil {
		return nil, errors.New("invalid key pem")
	}
	priv, err := x509.ParsePKCS8PrivateKey(kb.Bytes)
	if err != nil {
		rsaKey, err2 := x509.ParsePKCS1PrivateKey(kb.Bytes)
		if err2 != nil {
			return nil, err
		}
		return rsaKey, nil
	}
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", priv)
	}
	return rsaKey, nil
}

// EncodePrivateKey renders the key in PKCS#8 PEM form, the format the keygen
// command persists.
func EncodePrivateKey(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func ParseCertificate(certPEM []byte) (*x509.Certificate, error) {
	cb, _ := pem.Decode(certPEM)
	if cb == nil {
		return nil, errors.New("invalid cert pem")
	}
	return x509.ParseCertificate(cb.Bytes)
}

func EncodeCertificate(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// firstCertificate picks the first key descriptor declared for use, falling
// back to use-less descriptors the way IdPs commonly publish a single dual-use
// key.
func firstCertificate(descriptors []saml.KeyDescriptor, use string) (*x509.Certificate, error) {
	var fallback *saml.KeyDescriptor
	for i := range descriptors {
		switch descriptors[i].Use {
		case use:
			return descriptorCertificate(&descriptors[i])
		case "":
			if fallback == nil {
				fallback = &descriptors[i]
			}
		}
	}
	if fallback != nil {
		return descriptorCertificate(fallback)
	}
	return nil, fmt.Errorf("%w: no %s key descriptor present", ErrNotConfigured, use)
}

func descriptorCertificate(kd *saml.KeyDescriptor) (*x509.Certificate, error) {
	if len(kd.KeyInfo.X509Data.X509Certificates) == 0 {
		return nil, fmt.Errorf("%w: key descriptor carries no certificate", ErrNotConfigured)
	}
	data := kd.KeyInfo.X509Data.X509Certificates[0].Data
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(data), ""))
	if err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}
