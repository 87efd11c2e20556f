package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sluicedb/sluice/internal/auth"
	"github.com/sluicedb/sluice/internal/keyring"
	"github.com/sluicedb/sluice/internal/server"
	"github.com/sluicedb/sluice/internal/session"
)

const banner = `
 ___ _   _   _ ___ ___ ___
/ __| | | | | |_ _/ __| __|
\__ \ |_| |_| || | (__| _|
|___/____\___/|___\___|___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Sluice API server",
		Long:  "Start the HTTP server that exposes the authentication and user management API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logLevel := parseLogLevel(cfg.Logging.Level)
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// 1. Open the credential store
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer st.Close()
	logger.Info("credential store opened", "driver", cfg.Database.Driver)

	// 2. Resolve the encryption key (env, key file, or freshly generated)
	keys, err := keyring.Resolve(resolveDataDir())
	if err != nil {
		return fmt.Errorf("resolve encryption key: %w", err)
	}
	logger.Info("encryption key loaded", "fingerprint", keys.Fingerprint())

	// 3. Build the authentication engine
	policy, err := cfg.Auth.Policy()
	if err != nil {
		return err
	}
	engine := auth.NewEngine(st, keys, policy, logger)

	// 4. First-run bootstrap: create the default admin if the store is empty
	password, created, err := engine.EnsureDefaultAdmin(context.Background())
	if err != nil {
		return fmt.Errorf("bootstrap default admin: %w", err)
	}
	if created {
		fmt.Println("First run: created default admin account.")
		fmt.Println()
		fmt.Printf("  Username: admin\n")
		fmt.Printf("  Password: %s\n", password)
		fmt.Println()
		fmt.Println("  Save this password now - it cannot be retrieved again.")
		fmt.Println()
	}

	// 5. Session manager keyed off the store encryption key
	sessions := session.NewManager(keys.SessionSecret(), engine.Policy().SessionTimeout)

	// 6. Build and start HTTP server
	srvCfg := server.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        cfg.Server.CORSOrigins,
		LoginRatePerMinute: cfg.Server.LoginRatePerMinute,
	}

	srv := server.New(srvCfg, engine, sessions, logger)

	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Login:    POST http://%s:%d/api/v1/auth/session\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:   http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
