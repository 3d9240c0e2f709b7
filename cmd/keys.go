package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/vault"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate a MASTER_KEY value (base64) for VAULT_POLICY=master",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, vault.MinMasterKeyLen)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export MASTER_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}
}
