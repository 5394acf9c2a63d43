package main

import (
	"fmt"

	"github.com/capiscio/pledge-core/internal/api"
	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/spf13/cobra"
)

var (
	claimKey     string
	claimServer  string
	claimBadgeID uint64
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Sign a pledge and claim its badge",
	Long: `Fetch the pledge text from the server, sign it with the account key and
submit the claim for the key's address.`,
	Example: `  pledge claim --key alice.key --id 0`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		signer, err := crypto.LoadKey(claimKey)
		if err != nil {
			return err
		}
		client := api.NewClient(claimServer)

		p, err := client.Pledge(cmd.Context(), claimBadgeID)
		if err != nil {
			return err
		}
		sig, err := signer.SignPersonal([]byte(p.Content))
		if err != nil {
			return fmt.Errorf("failed to sign: %w", err)
		}
		st, err := client.Claim(cmd.Context(), claimBadgeID, signer.Address(), sig)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

func init() {
	rootCmd.AddCommand(claimCmd)

	claimCmd.Flags().StringVar(&claimKey, "key", "account.key", "Account key file (hex)")
	claimCmd.Flags().StringVar(&claimServer, "server", api.DefaultServerURL, "Pledge API base URL")
	claimCmd.Flags().Uint64Var(&claimBadgeID, "id", 0, "Pledge (badge) id")
}
