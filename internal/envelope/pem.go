package envelope

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
)

func certPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func parseCertPEM(b []byte) (*x509.Certificate, error) {
	cb, _ := pem.Decode(b)
	if cb == nil {
		return nil, errors.New("invalid cert pem")
	}
	return x509.ParseCertificate(cb.Bytes)
}
