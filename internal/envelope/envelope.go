// Package envelope implements the opaque encrypted and signed message
// envelopes exchanged with the IdP outside the SAML profiles: the
// profile-association `{"message": base64(encrypt(json))}` form and the admin
// `{payload, certificate, signature}` form.
package envelope

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Encrypt encrypts data to the holder of pub with RSA PKCS#1 v1.5, splitting
// the plaintext into key-sized blocks so payloads larger than the modulus
// (metadata documents) still fit.
func Encrypt(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	step := pub.Size() - 11
	if step <= 0 {
		return nil, errors.New("key too small")
	}
	var out []byte
	for len(data) > 0 {
		n := step
		if len(data) < n {
			n = len(data)
		}
		block, err := rsa.EncryptPKCS1v15(rand.Reader, pub, data[:n])
		if err != nil {
			return nil, fmt.Errorf("encrypt: %w", err)
		}
		out = append(out, block...)
		data = data[n:]
	}
	return out, nil
}

// Decrypt reverses Encrypt with the matching private key.
func Decrypt(key *rsa.PrivateKey, data []byte) ([]byte, error) {
	step := key.PublicKey.Size()
	if len(data) == 0 || len(data)%step != 0 {
		return nil, errors.New("ciphertext length is not a multiple of the key size")
	}
	var out []byte
	for len(data) > 0 {
		block, err := rsa.DecryptPKCS1v15(rand.Reader, key, data[:step])
		if err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
		out = append(out, block...)
		data = data[step:]
	}
	return out, nil
}

type sealed struct {
	Message string `json:"message"`
}

// Seal encrypts payload to cert and wraps it in the opaque JSON envelope.
func Seal(cert *x509.Certificate, payload []byte) ([]byte, error) {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate carries a %T key, want RSA", cert.PublicKey)
	}
	enc, err := Encrypt(pub, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealed{Message: base64.StdEncoding.EncodeToString(enc)})
}

// Open unwraps and decrypts an envelope produced by Seal.
func Open(key *rsa.PrivateKey, body []byte) ([]byte, error) {
	var env sealed
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("message attribute must be provided: %w", err)
	}
	if env.Message == "" {
		return nil, errors.New("message attribute must be provided")
	}
	raw, err := base64.StdEncoding.DecodeString(env.Message)
	if err != nil {
		return nil, errors.New("message attribute is not a base64 encoded string")
	}
	return Decrypt(key, raw)
}

// SignedMessage is the admin wire envelope: a JSON payload, the signer's
// certificate and an RSA-SHA256 signature over the payload.
type SignedMessage struct {
	Message     json.RawMessage `json:"message"`
	Certificate string          `json:"certificate"`
	Signature   string          `json:"signature"`
}

// Sign wraps payload in a SignedMessage using key and its certificate.
func Sign(key *rsa.PrivateKey, cert *x509.Certificate, payload []byte) (*SignedMessage, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return &SignedMessage{
		Message:     payload,
		Certificate: string(certPEM(cert)),
		Signature:   base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// Verify checks the embedded signature against the embedded certificate and
// returns the payload.
func (m *SignedMessage) Verify() ([]byte, error) {
	cert, err := parseCertPEM([]byte(m.Certificate))
	if err != nil {
		return nil, fmt.Errorf("signed message certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signed message certificate carries a %T key, want RSA", cert.PublicKey)
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return nil, errors.New("signature is not a base64 encoded string")
	}
	digest := sha256.Sum256(m.Message)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return nil, fmt.Errorf("signature mismatch: %w", err)
	}
	return m.Message, nil
}
