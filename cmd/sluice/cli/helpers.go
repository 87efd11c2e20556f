package cli

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/sluicedb/sluice/internal/config"
	"github.com/sluicedb/sluice/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// SLUICE_DATA_DIR env var, or ~/.sluice as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("SLUICE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.sluice"
}

// loadConfig reads the configuration file discovered by viper (or named by
// --config). A missing file yields the defaults.
func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		path = "sluice.yaml"
	}
	return config.Load(path)
}

// openStore opens the credential store named by the configuration. An
// explicit DSN wins; otherwise the SQLite database in the data directory
// is used.
func openStore(cfg config.Config) (*store.Store, error) {
	if cfg.Database.DSN != "" {
		return store.Open(cfg.Database.Driver, cfg.Database.DSN)
	}
	return store.OpenDataDir(resolveDataDir())
}

// promptPassword reads a password twice from the terminal without echo.
func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}
