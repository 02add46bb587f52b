package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sp:
  entity_id: https://sp.example
idp:
  entity_id: https://idp.example
metadata:
  base_dir: /var/lib/sp-connect
  private_key_file: sp_key.pem
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "/", cfg.SP.DefaultTargetPath)
	assert.Equal(t, "/connect/admin", cfg.SP.AdminPath)
	assert.Equal(t, "/connect/profile-association", cfg.SP.ProfileAssociationPath)
	assert.Equal(t, "https://idp.example/idp.xml", cfg.IdPMetadataURL())
	assert.Equal(t, filepath.Join("/var/lib/sp-connect", "sp.xml"), cfg.SPMetadataPath())
	assert.Equal(t, filepath.Join("/var/lib/sp-connect", "idp.xml"), cfg.IdPMetadataPath())
	assert.Equal(t, filepath.Join("/var/lib/sp-connect", "sp_key.pem"), cfg.PrivateKeyPath())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen: ":9443"
sp:
  entity_id: https://sp.example
  name: Billing Frontend
  default_target_path: /home
idp:
  entity_id: https://idp.example
  metadata_target: /metadata.xml
metadata:
  base_dir: /tmp/md
  private_key_file: key.pem
token:
  endpoint: https://tokens.example
  cache: true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9443", cfg.Server.Listen)
	assert.Equal(t, "/home", cfg.SP.DefaultTargetPath)
	assert.Equal(t, "Billing Frontend", cfg.DisplayName())
	assert.Equal(t, "https://idp.example/metadata.xml", cfg.IdPMetadataURL())
	assert.Equal(t, "https://tokens.example", cfg.TokenEndpoint())
	assert.True(t, cfg.Token.Cache)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing sp entity id", func(c *Config) { c.SP.EntityID = "" }, "sp.entity_id"},
		{"missing idp entity id", func(c *Config) { c.IdP.EntityID = "" }, "idp.entity_id"},
		{"missing base dir", func(c *Config) { c.Metadata.BaseDir = "" }, "metadata.base_dir"},
		{"missing key file", func(c *Config) { c.Metadata.PrivateKeyFile = "" }, "metadata.private_key_file"},
		{"missing listen", func(c *Config) { c.Server.Listen = "" }, "server.listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SP.EntityID = "https://sp.example"
			cfg.IdP.EntityID = "https://idp.example"
			cfg.Metadata.BaseDir = t.TempDir()
			cfg.Metadata.PrivateKeyFile = "key.pem"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTokenEndpointFallsBackToIdP(t *testing.T) {
	cfg := Default()
	cfg.IdP.EntityID = "https://idp.example"
	assert.Equal(t, "https://idp.example", cfg.TokenEndpoint())
}
