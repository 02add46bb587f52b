package bootstrap

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"jbarbier/sp-connect/internal/config"
	"jbarbier/sp-connect/internal/metadata"
)

const rsaKeyBits = 2048

// Consistency checks and repairs the persisted SP configuration. Steps run in
// order, each assuming its predecessors succeeded, and every step is
// idempotent so Validate is safe to run on every startup.
type Consistency struct {
	cfg        *config.Config
	provider   *Provider
	httpClient *http.Client
}

func NewConsistency(cfg *config.Config) *Consistency {
	return &Consistency{
		cfg:        cfg,
		provider:   NewProvider(cfg.IdP.EntityID),
		httpClient: http.DefaultClient,
	}
}

func (c *Consistency) WithProvider(p *Provider) *Consistency {
	c.provider = p
	return c
}

func (c *Consistency) WithHTTPClient(hc *http.Client) *Consistency {
	c.httpClient = hc
	return c
}

// Validate runs the consistency steps. It returns false without error when
// the SP registered itself but the IdP has not published its configuration
// yet; serving SAML flows must wait for a later run to complete.
func (c *Consistency) Validate() (bool, error) {
	if err := c.EnsurePrivateKey(); err != nil {
		return false, stepErr("private key", err)
	}
	if err := c.EnsureIdPMetadata(); err != nil {
		return false, stepErr("idp metadata", err)
	}
	ready, err := c.EnsureSPMetadata()
	if err != nil {
		return false, stepErr("sp metadata", err)
	}
	return ready, nil
}

// EnsurePrivateKey generates and persists the SP key pair if none exists.
func (c *Consistency) EnsurePrivateKey() error {
	if _, err := os.Stat(c.cfg.PrivateKeyPath()); err == nil {
		return nil
	}
	log.Printf("generating SP private key at %s", c.cfg.PrivateKeyPath())
	_, err := c.CreatePrivateKey()
	return err
}

// CreatePrivateKey generates a fresh key pair and persists it, replacing any
// existing key. Regeneration requests come through here too.
func (c *Consistency) CreatePrivateKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}
	pemBytes, err := metadata.EncodePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding RSA key: %w", err)
	}
	path := c.cfg.PrivateKeyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("writing private key: %w", err)
	}
	return key, nil
}

// EnsureIdPMetadata fetches the IdP metadata document from its well-known
// location if it is not persisted yet.
func (c *Consistency) EnsureIdPMetadata() error {
	path := c.cfg.IdPMetadataPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	url := c.cfg.IdPMetadataURL()
	log.Printf("fetching IdP metadata from %s", url)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("fetching IdP metadata from %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching IdP metadata from %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading IdP metadata: %w", err)
	}
	if _, err := metadata.ParseDescriptor(body); err != nil {
		return fmt.Errorf("IdP metadata from %s: %w", url, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing IdP metadata: %w", err)
	}
	return nil
}

// EnsureSPMetadata makes sure the SP's own metadata document is persisted.
// When the IdP already holds a configuration for this entity it is persisted
// locally; otherwise a subscription request is sent and the step reports not
// ready.
func (c *Consistency) EnsureSPMetadata() (bool, error) {
	path := c.cfg.SPMetadataPath()
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}

	entityID := c.cfg.SP.EntityID
	msg, err := c.provider.SPConfiguration(entityID)
	if err != nil {
		log.Printf("no registered configuration for %s: %v", entityID, err)
		msg = &SPConfigurationMessage{}
	}

	if msg.XML == "" {
		if msg.ID != "" {
			log.Printf("subscription for %s is pending approval", entityID)
			return false, nil
		}
		if err := c.subscribe(entityID); err != nil {
			return false, err
		}
		log.Printf("subscription request sent for %s", entityID)
		return false, nil
	}

	if err := os.WriteFile(path, []byte(msg.XML), 0o644); err != nil {
		return false, fmt.Errorf("writing SP metadata: %w", err)
	}
	return true, nil
}

func (c *Consistency) subscribe(entityID string) error {
	idp, err := metadata.LoadDescriptor(c.cfg.IdPMetadataPath())
	if err != nil {
		return fmt.Errorf("loading IdP metadata: %w", err)
	}
	idpCert, err := metadata.New(idp, nil, nil).IdPEncryptionCert()
	if err != nil {
		return err
	}
	key, err := metadata.LoadPrivateKey(c.cfg.PrivateKeyPath())
	if err != nil {
		return fmt.Errorf("loading private key: %w", err)
	}
	cert, err := metadata.SelfSignedCertificate(key, entityID)
	if err != nil {
		return fmt.Errorf("deriving SP certificate: %w", err)
	}
	sub := NewSubscribeMessage(entityID, c.cfg.DisplayName(), entityID+c.cfg.SP.AdminPath)
	return c.provider.Subscribe(key, cert, idpCert, sub)
}
