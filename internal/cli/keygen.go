package cli

import (
	"crypto/sha256"
	"crypto/x509"
	"flag"
	"fmt"
	"os"

	"jbarbier/sp-connect/internal/bootstrap"
	"jbarbier/sp-connect/internal/config"
)

// RunKeygen generates or rotates the SP private key. Rotation invalidates the
// registered SP metadata, so the IdP has to be told through a regeneration
// message or a fresh subscription.
func RunKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	var (
		cfgPath = fs.String("config", "example.config.yaml", "path to config yaml")
		force   = fs.Bool("force", false, "replace an existing key")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(cfg.PrivateKeyPath()); err == nil && !*force {
		return fmt.Errorf("%s already exists, pass -force to rotate", cfg.PrivateKeyPath())
	}

	key, err := bootstrap.NewConsistency(cfg).CreatePrivateKey()
	if err != nil {
		return err
	}

	spki, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return err
	}
	fmt.Printf("OK: wrote %s (rsa%d, spki sha256 %x)\n",
		cfg.PrivateKeyPath(), key.N.BitLen(), sha256.Sum256(spki))
	return nil
}
