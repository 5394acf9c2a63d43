package main

import (
	"fmt"
	"io"

	"github.com/capiscio/pledge-core/pkg/adminguard"
	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/spf13/cobra"
)

var (
	keyOwner      bool
	keyOutAccount string
	keyOutPrivate string
	keyOutPublic  string
	keyShowPath   string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage account and owner keys",
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new key",
	Long: `Generate a new key.

By default a secp256k1 account key is written as hex and its address is
printed. Accounts sign pledge texts with this key to claim badges.

With --owner an Ed25519 owner key pair is written as JWK files instead. The
owner subject is the did:key of the public key; give the public JWK (or the
did:key) to the server and keep the private JWK for admin tokens.`,
	Example: `  # Account key
  pledge key gen --out alice.key

  # Owner key pair
  pledge key gen --owner --out-priv owner.jwk --out-pub owner.pub.jwk`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if keyOwner {
			return genOwnerKey(cmd.OutOrStdout(), keyOutPrivate, keyOutPublic)
		}
		return genAccountKey(cmd.OutOrStdout(), keyOutAccount)
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the address or subject of a key file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return showKey(cmd.OutOrStdout(), keyShowPath)
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenCmd)
	keyCmd.AddCommand(keyShowCmd)

	keyGenCmd.Flags().BoolVar(&keyOwner, "owner", false, "Generate an Ed25519 owner key pair instead of an account key")
	keyGenCmd.Flags().StringVar(&keyOutAccount, "out", "account.key", "Output path for the account key (hex)")
	keyGenCmd.Flags().StringVar(&keyOutPrivate, "out-priv", "owner.jwk", "Output path for the owner private key (JWK)")
	keyGenCmd.Flags().StringVar(&keyOutPublic, "out-pub", "owner.pub.jwk", "Output path for the owner public key (JWK)")

	keyShowCmd.Flags().StringVar(&keyShowPath, "key", "", "Key file (account hex or owner JWK)")
	_ = keyShowCmd.MarkFlagRequired("key")
}

func genAccountKey(out io.Writer, path string) error {
	signer, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	if err := signer.SaveKey(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Account key saved to %s\n", path)
	fmt.Fprintf(out, "🔑 Address: %s\n", signer.Address())
	return nil
}

func genOwnerKey(out io.Writer, privPath, pubPath string) error {
	key, err := adminguard.GenerateOwnerKey()
	if err != nil {
		return err
	}
	if err := key.SavePrivate(privPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Private Key saved to %s\n", privPath)
	if err := key.SavePublic(pubPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Public Key saved to %s\n", pubPath)
	fmt.Fprintf(out, "🔑 Owner: %s\n", key.Subject())
	return nil
}

// showKey accepts either kind of key file.
func showKey(out io.Writer, path string) error {
	if owner, err := adminguard.LoadKey(path); err == nil {
		fmt.Fprintln(out, owner.Subject())
		return nil
	}
	signer, err := crypto.LoadKey(path)
	if err != nil {
		return fmt.Errorf("%s is neither an owner JWK nor an account key: %w", path, err)
	}
	fmt.Fprintln(out, signer.Address())
	return nil
}
