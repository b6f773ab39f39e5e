package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moltarena/arena/internal/auth"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new agent API key and its storage hash",
		Long: `Generates a random API key for an agent, plus the bcrypt hash to hand to
the data service. The plain key is shown exactly once; only the hash is
stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			hash, err := auth.HashKey(key)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "api key:  %s\nkey hash: %s\n", key, hash)
			return nil
		},
	}
}
