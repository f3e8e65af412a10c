package main

import (
	"fmt"
	"path/filepath"

	"github.com/quantsmith/quantsmith/internal/config"
	"github.com/quantsmith/quantsmith/internal/signing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show or create the manifest signing key pair",
	Long: `Ensures an RSA key pair exists in the configured keys directory and prints
its location. The public key is what 'quantsmith verify --pubkey' expects.`,
	Args: cobra.NoArgs,
	RunE: runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if err := config.CreateAllDirs(); err != nil {
		return err
	}

	if _, err := signing.GetOrCreateKeys(cfg.Security.KeysDir, log.StandardLogger()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Private key: %s\n", filepath.Join(cfg.Security.KeysDir, signing.PrivateKeyFile))
	fmt.Fprintf(out, "Public key:  %s\n", filepath.Join(cfg.Security.KeysDir, signing.PublicKeyFile))
	return nil
}
