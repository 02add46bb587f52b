package bootstrap

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	spPath        = "/api/sp"
	subscribePath = "/api/sp/subscribe"
)

// Provider talks to the IdP admin API.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

func NewProvider(baseURL string) *Provider {
	return &Provider{baseURL: baseURL, httpClient: http.DefaultClient}
}

func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.httpClient = c
	return p
}

// SPConfiguration fetches the configuration the IdP holds for entityID. The
// IdP answers with a signed sp-configuration message, or an error message
// when the entity is unknown.
func (p *Provider) SPConfiguration(entityID string) (*SPConfigurationMessage, error) {
	resp, err := p.httpClient.Get(p.baseURL + spPath + "?entityID=" + url.QueryEscape(entityID))
	if err != nil {
		return nil, fmt.Errorf("fetching SP configuration: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading SP configuration: %w", err)
	}
	msg, err := DecodeSigned(body)
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case *SPConfigurationMessage:
		return m, nil
	case *ErrorMessage:
		return nil, fmt.Errorf("identity provider error: %s", m.Error)
	default:
		return nil, fmt.Errorf("unexpected %s message in SP configuration response", msg.Kind())
	}
}

// Subscribe posts a signed subscription request, encrypted to the IdP's
// encryption certificate.
func (p *Provider) Subscribe(key *rsa.PrivateKey, cert, idpCert *x509.Certificate, msg *SubscribeMessage) error {
	body, err := EncodeEncrypted(key, cert, idpCert, msg)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Post(p.baseURL+subscribePath, "text/plain", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("subscription rejected with status %d", resp.StatusCode)
	}
	return nil
}
