package main

import (
	"errors"
	"fmt"

	"github.com/quantsmith/quantsmith/internal/config"
	"github.com/quantsmith/quantsmith/internal/manifest"
	"github.com/quantsmith/quantsmith/internal/signing"
	"github.com/quantsmith/quantsmith/pkg/types"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [output-dir]",
	Short: "Check an artifact against its manifest",
	Long: `Reads model.json from the output directory (output.dir when omitted),
recomputes the SHA-256 of the artifact it names and compares the two. With --pubkey the manifest signature
is checked as well; an unsigned manifest then fails verification.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

var verifyPubKey string

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyPubKey, "pubkey", "", "PEM public key to verify the manifest signature with")
}

func runVerify(cmd *cobra.Command, args []string) error {
	dir := config.Get().Output.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	out := cmd.OutOrStdout()

	m, v, err := manifest.Verify(dir)
	if err != nil && !errors.Is(err, types.ErrDigestMismatch) {
		return err
	}

	fmt.Fprintf(out, "File:     %s\n", v.File)
	fmt.Fprintf(out, "Expected: %s\n", v.Expected)
	fmt.Fprintf(out, "Actual:   %s\n", v.Actual)
	if err != nil {
		fmt.Fprintln(out, "❌ Digest mismatch")
		return err
	}
	fmt.Fprintln(out, "✅ Digest matches")

	if verifyPubKey == "" {
		return nil
	}

	pub, err := signing.LoadPublicKey(verifyPubKey)
	if err != nil {
		return err
	}
	if err := signing.VerifyManifest(m, pub); err != nil {
		fmt.Fprintln(out, "❌ Signature invalid")
		return err
	}
	fmt.Fprintln(out, "✅ Signature valid")
	return nil
}
