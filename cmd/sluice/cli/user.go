package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sluicedb/sluice/internal/auth"
	"github.com/sluicedb/sluice/internal/keyring"
	"github.com/sluicedb/sluice/internal/model"
	"github.com/sluicedb/sluice/internal/store"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  "Create, list, and administer the user accounts in the credential store.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserPasswdCmd())
	cmd.AddCommand(newUserRoleCmd())
	cmd.AddCommand(newUserActivateCmd())
	cmd.AddCommand(newUserDeactivateCmd())
	cmd.AddCommand(newUserUnlockCmd())
	cmd.AddCommand(newUserDeleteCmd())

	return cmd
}

// withEngine opens the store and runs fn against a ready engine. All user
// subcommands funnel through here so the store is always closed.
func withEngine(fn func(ctx context.Context, engine *auth.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer st.Close()

	keys, err := keyring.Resolve(resolveDataDir())
	if err != nil {
		return fmt.Errorf("resolve encryption key: %w", err)
	}

	policy, err := cfg.Auth.Policy()
	if err != nil {
		return err
	}

	return fn(context.Background(), auth.NewEngine(st, keys, policy, nil))
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		password    string
		role        string
		displayName string
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a new user account",
		Example: `  sluice user create mario --role user --name "Mario Rossi"
  sluice user create root --role admin  # prompts for password`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(args[0], password, role, displayName)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&role, "role", "user", "Role: admin or user")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name")

	return cmd
}

func runUserCreate(username, password, roleName, displayName string) error {
	role, err := model.ParseRole(roleName)
	if err != nil {
		return err
	}

	if password == "" {
		if password, err = promptPassword(); err != nil {
			return err
		}
	}

	return withEngine(func(ctx context.Context, engine *auth.Engine) error {
		if _, err := engine.CreateUser(ctx, username, password, role, displayName); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Printf("Created user %q with role %s\n", username, role)
		return nil
	})
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
	return withEngine(func(ctx context.Context, engine *auth.Engine) error {
		users, err := engine.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		type userRow struct {
			Username  string `json:"username"`
			Name      string `json:"name"`
			Role      string `json:"role"`
			Active    bool   `json:"active"`
			Locked    bool   `json:"locked"`
			LastLogin string `json:"last_login,omitempty"`
		}

		now := time.Now()
		rows := make([]userRow, len(users))
		for i, u := range users {
			rows[i] = userRow{
				Username: u.Username,
				Name:     u.DisplayName,
				Role:     string(u.Role),
				Active:   u.IsActive,
				Locked:   u.Locked(now),
			}
			if u.LastLoginAt != nil {
				rows[i].LastLogin = u.LastLoginAt.Format(time.RFC3339)
			}
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		if len(rows) == 0 {
			fmt.Println("No users configured. Use 'sluice user create' to create one.")
			return nil
		}

		fmt.Printf("%-20s %-24s %-8s %-8s %-8s %-24s\n", "USERNAME", "NAME", "ROLE", "ACTIVE", "LOCKED", "LAST LOGIN")
		fmt.Printf("%-20s %-24s %-8s %-8s %-8s %-24s\n", "--------", "----", "----", "------", "------", "----------")
		for _, u := range rows {
			fmt.Printf("%-20s %-24s %-8s %-8s %-8s %-24s\n",
				u.Username, u.Name, u.Role, yesNo(u.Active), yesNo(u.Locked), u.LastLogin)
		}
		return nil
	})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ---------- user passwd ----------

func newUserPasswdCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Change a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserPasswd(args[0], password)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "New password (prompted if omitted)")

	return cmd
}

func runUserPasswd(username, password string) error {
	var err error
	if password == "" {
		if password, err = promptPassword(); err != nil {
			return err
		}
	}

	return withEngine(func(ctx context.Context, engine *auth.Engine) error {
		if err := engine.SetPassword(ctx, username, password); err != nil {
			return fmt.Errorf("set password: %w", err)
		}
		fmt.Printf("Password changed for %q\n", username)
		return nil
	})
}

// ---------- user role ----------

func newUserRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role <username> <role>",
		Short: "Change a user's role",
		Long:  "Assign a role (admin or user) to an existing account.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := model.ParseRole(args[1])
			if err != nil {
				return err
			}
			return withEngine(func(ctx context.Context, engine *auth.Engine) error {
				if err := engine.SetRole(ctx, args[0], role); err != nil {
					return fmt.Errorf("set role: %w", err)
				}
				fmt.Printf("User %q is now %s\n", args[0], role)
				return nil
			})
		},
	}

	return cmd
}

// ---------- user activate / deactivate ----------

func newUserActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <username>",
		Short: "Re-enable a deactivated account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserSetActive(args[0], true)
		},
	}
}

func newUserDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <username>",
		Short: "Disable an account without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserSetActive(args[0], false)
		},
	}
}

func runUserSetActive(username string, active bool) error {
	return withEngine(func(ctx context.Context, engine *auth.Engine) error {
		if err := engine.SetActive(ctx, username, active); err != nil {
			return fmt.Errorf("set active: %w", err)
		}
		state := "deactivated"
		if active {
			state = "activated"
		}
		fmt.Printf("User %q %s\n", username, state)
		return nil
	})
}

// ---------- user unlock ----------

func newUserUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <username>",
		Short: "Clear a user's lockout and failure counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *auth.Engine) error {
				if err := engine.Unlock(ctx, args[0]); err != nil {
					return fmt.Errorf("unlock: %w", err)
				}
				fmt.Printf("User %q unlocked\n", args[0])
				return nil
			})
		},
	}
}

// ---------- user delete ----------

func newUserDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <username>",
		Aliases: []string{"rm"},
		Short:   "Delete a user account permanently",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserDelete(args[0], force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")

	return cmd
}

func runUserDelete(username string, force bool) error {
	if !force {
		fmt.Printf("Delete user %q? This cannot be undone. [y/N] ", username)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	return withEngine(func(ctx context.Context, engine *auth.Engine) error {
		if err := engine.DeleteUser(ctx, username); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %q not found", username)
			}
			return fmt.Errorf("delete user: %w", err)
		}
		fmt.Printf("Deleted user %q\n", username)
		return nil
	})
}
