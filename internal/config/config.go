package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns a Config carrying the conventional paths. Entity ids and
// file locations still have to be provided.
func Default() *Config {
	return &Config{
		Server: Server{Listen: ":8080"},
		SP: SP{
			DefaultTargetPath:      "/",
			LogoutTargetPath:       "/",
			ProfileAssociationPath: "/connect/profile-association",
			AdminPath:              "/connect/admin",
		},
		IdP: IdP{MetadataTarget: "/idp.xml"},
		Metadata: MetadataFiles{
			SPFile:  "sp.xml",
			IdPFile: "idp.xml",
		},
	}
}

func (c *Config) Validate() error {
	if c.SP.EntityID == "" {
		return fmt.Errorf("sp.entity_id required")
	}
	if c.IdP.EntityID == "" {
		return fmt.Errorf("idp.entity_id required")
	}
	if c.Metadata.BaseDir == "" {
		return fmt.Errorf("metadata.base_dir required")
	}
	if c.Metadata.PrivateKeyFile == "" {
		return fmt.Errorf("metadata.private_key_file required")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen required")
	}
	return nil
}
