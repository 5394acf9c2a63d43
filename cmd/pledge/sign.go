package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/spf13/cobra"
)

var (
	signKey  string
	signText string
	signFile string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a pledge text with an account key",
	Long: `Sign a pledge text with an account key and print the hex signature.

The text must match the pledge content byte for byte. Use --file when the
content has trailing newlines or other whitespace that a shell would mangle.`,
	Example: `  pledge sign --key alice.key --text "I pledge to keep my keys safe."
  pledge sign --key alice.key --file pledge.txt`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		msg, err := pledgeMessage(signText, signFile, cmd.Flags().Changed("text"))
		if err != nil {
			return err
		}
		return signPledge(cmd.OutOrStdout(), signKey, msg)
	},
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().StringVar(&signKey, "key", "account.key", "Account key file (hex)")
	signCmd.Flags().StringVar(&signText, "text", "", "Pledge text to sign")
	signCmd.Flags().StringVar(&signFile, "file", "", "File holding the pledge text")
}

// pledgeMessage picks the text to sign. An explicitly empty --text is valid.
func pledgeMessage(text, file string, textSet bool) ([]byte, error) {
	switch {
	case textSet && file != "":
		return nil, errors.New("use only one of --text and --file")
	case textSet:
		return []byte(text), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read pledge file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("one of --text or --file is required")
	}
}

func signPledge(out io.Writer, keyPath string, msg []byte) error {
	signer, err := crypto.LoadKey(keyPath)
	if err != nil {
		return err
	}
	sig, err := signer.SignPersonal(msg)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}
	fmt.Fprintln(out, crypto.FormatSignature(sig))
	return nil
}
