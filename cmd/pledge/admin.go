package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/capiscio/pledge-core/internal/api"
	"github.com/capiscio/pledge-core/pkg/adminguard"
	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/spf13/cobra"
)

var (
	adminKey         string
	adminSubject     string
	adminServer      string
	adminBodyFile    string
	adminURI         string
	adminContent     string
	adminContentFile string
	adminBadgeID     uint64
	adminAccount     string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Owner operations",
	Long: `Owner operations. Every command signs a short-lived admin token with the
owner's private JWK; the token is bound to the request body and is valid
for a single request.`,
}

var adminTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin token for a request body",
	Example: `  pledge admin token --key owner.jwk --body revoke.json
  curl -H "X-Pledge-Admin: $(pledge admin token --key owner.jwk --body revoke.json)" \
    --data @revoke.json http://localhost:8080/v1/pledges/0/revocations`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var body []byte
		if adminBodyFile != "" {
			var err error
			body, err = os.ReadFile(adminBodyFile)
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}
		}
		return mintAdminToken(cmd.OutOrStdout(), adminKey, adminSubject, body)
	},
}

var adminAddPledgeCmd = &cobra.Command{
	Use:   "add-pledge",
	Short: "Add a pledge to the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		content, err := pledgeMessage(adminContent, adminContentFile, cmd.Flags().Changed("content"))
		if err != nil {
			return err
		}
		client, err := newAdminClient()
		if err != nil {
			return err
		}
		id, err := client.AddPledge(cmd.Context(), adminURI, string(content))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Pledge %d added\n", id)
		return nil
	},
}

var adminRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an account's badge and lock it against reclaiming",
	RunE: func(cmd *cobra.Command, _ []string) error {
		account, err := crypto.ParseAddress(adminAccount)
		if err != nil {
			return err
		}
		client, err := newAdminClient()
		if err != nil {
			return err
		}
		st, err := client.Revoke(cmd.Context(), adminBadgeID, account)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var adminRedeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Lift a revocation lock so the account may claim again",
	RunE: func(cmd *cobra.Command, _ []string) error {
		account, err := crypto.ParseAddress(adminAccount)
		if err != nil {
			return err
		}
		client, err := newAdminClient()
		if err != nil {
			return err
		}
		st, err := client.Redeem(cmd.Context(), adminBadgeID, account)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminTokenCmd, adminAddPledgeCmd, adminRevokeCmd, adminRedeemCmd)

	adminCmd.PersistentFlags().StringVar(&adminKey, "key", "owner.jwk", "Owner private key (JWK)")
	adminCmd.PersistentFlags().StringVar(&adminSubject, "subject", "", "Token subject (default: did:key of the owner key)")
	adminCmd.PersistentFlags().StringVar(&adminServer, "server", api.DefaultServerURL, "Pledge API base URL")

	adminTokenCmd.Flags().StringVar(&adminBodyFile, "body", "", "File holding the exact request body")

	adminAddPledgeCmd.Flags().StringVar(&adminURI, "uri", "", "Pledge URI")
	adminAddPledgeCmd.Flags().StringVar(&adminContent, "content", "", "Pledge text")
	adminAddPledgeCmd.Flags().StringVar(&adminContentFile, "content-file", "", "File holding the pledge text")

	for _, c := range []*cobra.Command{adminRevokeCmd, adminRedeemCmd} {
		c.Flags().Uint64Var(&adminBadgeID, "id", 0, "Pledge (badge) id")
		c.Flags().StringVar(&adminAccount, "account", "", "Account address")
		_ = c.MarkFlagRequired("account")
	}
}

// loadAdminSigner returns a signing guard and the subject it signs for.
func loadAdminSigner(keyPath, subject string) (*adminguard.Guard, string, error) {
	key, err := adminguard.LoadKey(keyPath)
	if err != nil {
		return nil, "", err
	}
	if key.PrivateKey == nil {
		return nil, "", fmt.Errorf("%s holds a public key; admin tokens need the private key", keyPath)
	}
	if subject == "" {
		subject = key.Subject()
	}
	guard, err := adminguard.New(adminguard.Config{
		Issuer:     "pledge-cli",
		PrivateKey: key.PrivateKey,
		KeyID:      key.Subject(),
	})
	if err != nil {
		return nil, "", err
	}
	return guard, subject, nil
}

func mintAdminToken(out io.Writer, keyPath, subject string, body []byte) error {
	guard, subject, err := loadAdminSigner(keyPath, subject)
	if err != nil {
		return err
	}
	token, err := guard.SignOutbound(subject, body)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func newAdminClient() (*api.Client, error) {
	guard, subject, err := loadAdminSigner(adminKey, adminSubject)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(adminServer)
	client.Admin = guard
	client.Subject = subject
	return client, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
