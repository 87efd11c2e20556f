package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sluicedb/sluice/internal/keyring"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect the store encryption key",
		Long:  "Show where the encryption key comes from and its fingerprint. The key material itself is never printed.",
	}

	cmd.AddCommand(newKeyShowCmd())

	return cmd
}

func newKeyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active encryption key source and fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyShow()
		},
	}

	return cmd
}

func runKeyShow() error {
	keys, err := keyring.Resolve(resolveDataDir())
	if err != nil {
		return fmt.Errorf("resolve encryption key: %w", err)
	}

	source := "key file"
	location := keyring.KeyFilePath(resolveDataDir())
	if os.Getenv(keyring.EnvKey) != "" {
		source = "environment"
		location = keyring.EnvKey
	}

	fmt.Printf("Source:      %s\n", source)
	fmt.Printf("Location:    %s\n", location)
	fmt.Printf("Fingerprint: %s\n", keys.Fingerprint())
	return nil
}
