// Package bootstrap drives the metadata consistency protocol: on startup the
// SP makes sure it holds a private key, the IdP metadata document and its own
// registered SP metadata, registering itself with the IdP when needed. The
// admin messages exchanged during registration live here too.
package bootstrap

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"jbarbier/sp-connect/internal/envelope"
)

// Message is an admin protocol message. The wire form is JSON with a "type"
// discriminator, wrapped in a signed envelope and, on most legs, encrypted to
// the recipient's certificate.
type Message interface {
	Kind() string
}

const (
	kindSubscribe       = "subscribe"
	kindRegister        = "register"
	kindRegenerate      = "regenerate"
	kindSPConfiguration = "sp-configuration"
	kindError           = "error"
)

// SubscribeMessage asks the IdP to register this SP.
type SubscribeMessage struct {
	Type      string `json:"type"`
	EntityID  string `json:"entityID"`
	Name      string `json:"name"`
	AdminPath string `json:"adminPathInfo"`
}

func (m *SubscribeMessage) Kind() string { return kindSubscribe }

// RegisterMessage is sent by the IdP once a subscription is approved; it
// carries the endpoints the SP metadata must bind.
type RegisterMessage struct {
	Type     string `json:"type"`
	EntityID string `json:"entityID"`
	ACS      string `json:"acs"`
	Logout   string `json:"logout"`
}

func (m *RegisterMessage) Kind() string { return kindRegister }

// RegenerateMessage orders the SP to rotate its private key and rebuild its
// metadata with the endpoints already on record.
type RegenerateMessage struct {
	Type     string `json:"type"`
	EntityID string `json:"entityID"`
}

func (m *RegenerateMessage) Kind() string { return kindRegenerate }

// SPConfigurationMessage carries a registered SP metadata document. An empty
// XML with a non-empty ID means the subscription is known but still pending.
type SPConfigurationMessage struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	EntityID string `json:"entityID,omitempty"`
	XML      string `json:"xml"`
}

func (m *SPConfigurationMessage) Kind() string { return kindSPConfiguration }

// ErrorMessage reports a failure over the admin channel.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (m *ErrorMessage) Kind() string { return kindError }

// NewSubscribeMessage, NewSPConfigurationMessage and NewErrorMessage stamp
// the discriminator so callers never set it by hand.
func NewSubscribeMessage(entityID, name, adminPath string) *SubscribeMessage {
	return &SubscribeMessage{Type: kindSubscribe, EntityID: entityID, Name: name, AdminPath: adminPath}
}

func NewSPConfigurationMessage(xml string) *SPConfigurationMessage {
	return &SPConfigurationMessage{Type: kindSPConfiguration, XML: xml}
}

func NewErrorMessage(msg string) *ErrorMessage {
	return &ErrorMessage{Type: kindError, Error: msg}
}

// EncodeSigned wraps a message in a signed envelope and renders it as JSON.
func EncodeSigned(key *rsa.PrivateKey, cert *x509.Certificate, msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Kind(), err)
	}
	signed, err := envelope.Sign(key, cert, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(signed)
}

// DecodeSigned verifies a signed envelope and hydrates the message it carries
// by its type discriminator.
func DecodeSigned(body []byte) (Message, error) {
	var signed envelope.SignedMessage
	if err := json.Unmarshal(body, &signed); err != nil {
		return nil, fmt.Errorf("decode signed message: %w", err)
	}
	payload, err := signed.Verify()
	if err != nil {
		return nil, err
	}
	return decodePayload(payload)
}

func decodePayload(payload []byte) (Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	var msg Message
	switch head.Type {
	case kindSubscribe:
		msg = &SubscribeMessage{}
	case kindRegister:
		msg = &RegisterMessage{}
	case kindRegenerate:
		msg = &RegenerateMessage{}
	case kindSPConfiguration:
		msg = &SPConfigurationMessage{}
	case kindError:
		msg = &ErrorMessage{}
	default:
		return nil, fmt.Errorf("unknown message type %q", head.Type)
	}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", head.Type, err)
	}
	return msg, nil
}

// EncodeEncrypted signs a message and encrypts the whole envelope to the
// recipient's certificate. The wire form is the base64 of the ciphertext.
func EncodeEncrypted(key *rsa.PrivateKey, cert, recipient *x509.Certificate, msg Message) ([]byte, error) {
	signed, err := EncodeSigned(key, cert, msg)
	if err != nil {
		return nil, err
	}
	pub, ok := recipient.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("recipient certificate carries a %T key, want RSA", recipient.PublicKey)
	}
	enc, err := envelope.Encrypt(pub, signed)
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(enc)), nil
}

// DecodeEncrypted reverses EncodeEncrypted with the recipient's private key.
func DecodeEncrypted(key *rsa.PrivateKey, body []byte) (Message, error) {
	raw, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil {
		return nil, fmt.Errorf("message body is not base64 encoded: %w", err)
	}
	signed, err := envelope.Decrypt(key, raw)
	if err != nil {
		return nil, err
	}
	return DecodeSigned(signed)
}
