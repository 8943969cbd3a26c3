package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/NBISweden/timereport/credentials"
)

// AuthCommandDeps holds the dependencies for the auth commands.
type AuthCommandDeps struct {
	// Store is the keyring-backed credential store. Overridable in tests.
	Store credentials.Store

	// ReadKey prompts for an API key. Defaults to a hidden terminal prompt
	// with a plain stdin fallback.
	ReadKey func() (string, error)
}

// Auth command flags.
var authAPIKey string

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	if deps == nil {
		deps = &AuthCommandDeps{}
	}
	if deps.Store == nil {
		deps.Store = credentials.NewKeyringStore()
	}
	if deps.ReadKey == nil {
		deps.ReadKey = promptForAPIKey
	}

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Redmine API key",
		Long: `Manage the Redmine API key used for report generation.

The key is stored in the system keyring. The TIMEREPORT_API_KEY environment
variable and the api_key config field override the stored key; run
'timereport auth status' to see which source is active.`,
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Store a Redmine API key",
		Long: `Store a Redmine API key in the system keyring.

The key is found on your Redmine account page under "API access key".

Examples:
  timereport auth login              Prompt for the key
  timereport auth login --api-key …  Non-interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd, deps)
		},
	}
	loginCmd.Flags().StringVar(&authAPIKey, "api-key", "", "Redmine API key")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd, deps)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which API key source is active",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd, deps)
		},
	}

	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)
	return authCmd
}

func runAuthLogin(cmd *cobra.Command, deps *AuthCommandDeps) error {
	key := authAPIKey
	if key == "" {
		key = os.Getenv("TIMEREPORT_API_KEY")
		if key != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Using API key from TIMEREPORT_API_KEY environment variable")
		}
	}
	if key == "" {
		var err error
		key, err = deps.ReadKey()
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("no API key provided")
	}
	if len(key) < 8 {
		return fmt.Errorf("API key is too short")
	}

	if err := deps.Store.Set(key); err != nil {
		return fmt.Errorf("storing API key: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "API key stored.")
	fmt.Fprintf(cmd.OutOrStdout(), "  Key:   %s\n", maskKey(key))
	fmt.Fprintf(cmd.OutOrStdout(), "  Store: %s\n", deps.Store.Description())
	return nil
}

func runAuthLogout(cmd *cobra.Command, deps *AuthCommandDeps) error {
	if _, err := deps.Store.Get(); errors.Is(err, credentials.ErrNoAPIKey) {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored API key found.")
		return nil
	}
	if err := deps.Store.Delete(); err != nil {
		return fmt.Errorf("removing API key: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Stored API key removed.")
	if os.Getenv("TIMEREPORT_API_KEY") != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "\nNote: TIMEREPORT_API_KEY environment variable is still set.")
	}
	return nil
}

func runAuthStatus(cmd *cobra.Command, deps *AuthCommandDeps) error {
	out := cmd.OutOrStdout()

	key, source, err := credentials.Resolve(credentials.EnvStore{}, deps.Store)
	if err != nil {
		if errors.Is(err, credentials.ErrNoAPIKey) {
			fmt.Fprintln(out, "No API key configured.")
			fmt.Fprintln(out, "Run 'timereport auth login' to store one.")
			return nil
		}
		return err
	}

	fmt.Fprintf(out, "API key: %s\n", maskKey(key))
	fmt.Fprintf(out, "Source:  %s\n", source)
	return nil
}

// promptForAPIKey reads the key with echo disabled, falling back to plain
// stdin when no terminal is attached.
func promptForAPIKey() (string, error) {
	fmt.Print("Redmine API key: ")
	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err == nil {
		return string(keyBytes), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// maskKey shows only the first and last two characters of the key.
func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:2] + strings.Repeat("*", len(key)-4) + key[len(key)-2:]
}
