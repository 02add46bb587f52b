package config

import "path/filepath"

type SP struct {
	EntityID               string `yaml:"entity_id"`
	Name                   string `yaml:"name"`
	DefaultTargetPath      string `yaml:"default_target_path"`
	LogoutTargetPath       string `yaml:"logout_target_path"`
	ProfileAssociationPath string `yaml:"profile_association_path"`
	AdminPath              string `yaml:"admin_path"`
}

type IdP struct {
	EntityID string `yaml:"entity_id"`
	// MetadataTarget is the well-known path of the IdP metadata document,
	// relative to the IdP entity id.
	MetadataTarget string `yaml:"metadata_target"`
}

type MetadataFiles struct {
	BaseDir        string `yaml:"base_dir"`
	SPFile         string `yaml:"sp_file"`
	IdPFile        string `yaml:"idp_file"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

type Token struct {
	// Endpoint is the base URL of the remote token service. Empty means the
	// IdP entity id is used.
	Endpoint string `yaml:"endpoint"`
	Cache    bool   `yaml:"cache"`
}

type Server struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	Server   Server        `yaml:"server"`
	SP       SP            `yaml:"sp"`
	IdP      IdP           `yaml:"idp"`
	Metadata MetadataFiles `yaml:"metadata"`
	Token    Token         `yaml:"token"`
}

// SPMetadataPath returns the location of the persisted SP metadata document.
func (c *Config) SPMetadataPath() string {
	return filepath.Join(c.Metadata.BaseDir, c.Metadata.SPFile)
}

// IdPMetadataPath returns the location of the persisted IdP metadata document.
func (c *Config) IdPMetadataPath() string {
	return filepath.Join(c.Metadata.BaseDir, c.Metadata.IdPFile)
}

// PrivateKeyPath returns the location of the SP private key.
func (c *Config) PrivateKeyPath() string {
	return filepath.Join(c.Metadata.BaseDir, c.Metadata.PrivateKeyFile)
}

// IdPMetadataURL is the well-known location the IdP metadata is fetched from.
func (c *Config) IdPMetadataURL() string {
	return c.IdP.EntityID + c.IdP.MetadataTarget
}

// TokenEndpoint returns the base URL of the remote token service.
func (c *Config) TokenEndpoint() string {
	if c.Token.Endpoint != "" {
		return c.Token.Endpoint
	}
	return c.IdP.EntityID
}

// DisplayName returns the SP name used during registration, falling back to
// the entity id.
func (c *Config) DisplayName() string {
	if c.SP.Name != "" {
		return c.SP.Name
	}
	return c.SP.EntityID
}
