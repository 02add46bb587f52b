package assoc

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"

	"jbarbier/sp-connect/internal/envelope"
)

// Service drives one profile association exchange: decrypt with the SP key,
// dispatch to the application callback, and seal the answer for the IdP.
type Service struct {
	key      *rsa.PrivateKey
	idpCert  *x509.Certificate
	callback Callback
}

func NewService(key *rsa.PrivateKey, idpCert *x509.Certificate, callback Callback) *Service {
	return &Service{key: key, idpCert: idpCert, callback: callback}
}

// Handle processes an encrypted association request body and returns the
// encrypted response body. Protocol failures come back as *Error so the
// caller can report them to the IdP; anything else is fatal.
func (s *Service) Handle(body []byte) ([]byte, error) {
	if s.callback == nil {
		return nil, fmt.Errorf("no profile association callback configured")
	}
	payload, err := envelope.Open(s.key, body)
	if err != nil {
		return nil, &Error{Code: 400, Message: fmt.Sprintf("unable to decrypt message: %v", err)}
	}
	req, err := DecodeRequest(payload)
	if err != nil {
		return nil, err
	}
	resp, err := s.callback(req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("profile association callback returned no response")
	}
	if !roleOffered(resp.Role, req.Roles()) {
		return nil, fmt.Errorf("role %q is not among the roles offered by the identity provider", resp.Role)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encoding association response: %w", err)
	}
	return envelope.Seal(s.idpCert, out)
}

// SealError encrypts a protocol failure so it can be returned to the IdP on
// the same channel as a success.
func (s *Service) SealError(assocErr *Error) ([]byte, error) {
	out, err := json.Marshal(assocErr)
	if err != nil {
		return nil, fmt.Errorf("encoding association error: %w", err)
	}
	return envelope.Seal(s.idpCert, out)
}

func roleOffered(role string, offered []string) bool {
	for _, r := range offered {
		if r == role {
			return true
		}
	}
	return false
}
