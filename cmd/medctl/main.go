// Package main is medctl, the command-line client for the medicine
// tracking server.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vyrodovalexey/medtrack/internal/auth"
	"github.com/vyrodovalexey/medtrack/internal/client"
	"github.com/vyrodovalexey/medtrack/internal/model"
)

var version = "dev"

const defaultServer = "http://localhost:8080"

// User-facing messages for failed operations.
var (
	errAlreadyIncluded = errors.New("medicine already included")
	errNotFound        = errors.New("medicine not found")
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries the settings shared by all subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// newRootCmd builds a fresh command tree with its own viper instance, so
// tests can run commands in isolation.
func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "medctl",
		Short: "medctl manages medicines on a medtrack server.",
		Long: `medctl adds, deletes and inspects medicines tracked by a medtrack
server, and lists the ones that expire soon.

Settings come from flags, MEDCTL_* environment variables or a YAML
config file (default $HOME/.medctl.yaml).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.medctl.yaml)")
	flags.String("server", defaultServer, "medtrack server URL")
	flags.String("api-key", "", "API key sent in the X-API-Key header")
	flags.String("user", "", "username for HTTP Basic authentication")
	flags.String("password", "", "password for HTTP Basic authentication")
	flags.Duration("timeout", client.DefaultTimeout, "request timeout")

	for _, name := range []string{"server", "api-key", "user", "password", "timeout"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(
		newAddCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
		newStatusCmd(a),
		newExpiringCmd(a),
		newHashPasswordCmd(),
	)

	return cmd
}

// initConfig binds MEDCTL_* variables and reads the config file. A missing
// default config file is not an error.
func (a *app) initConfig() error {
	a.v.SetEnvPrefix("MEDCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".medctl")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && a.cfgFile == "" {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	return nil
}

// client builds an API client from the resolved settings.
func (a *app) client() (*client.Client, error) {
	var opts []client.Option
	if timeout := a.v.GetDuration("timeout"); timeout > 0 {
		opts = append(opts, client.WithTimeout(timeout))
	}
	if key := a.v.GetString("api-key"); key != "" {
		opts = append(opts, client.WithAPIKey(key))
	}
	if user := a.v.GetString("user"); user != "" {
		opts = append(opts, client.WithBasicAuth(user, a.v.GetString("password")))
	}

	return client.New(a.v.GetString("server"), opts...)
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME DATE",
		Short: "Add a medicine with its expiration date (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ValidateMedicineInput(args[0], args[1])
			if err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}

			added, err := c.Add(cmd.Context(), key.Name, key.ExpirationDate.String())
			if errors.Is(err, client.ErrDuplicate) {
				return errAlreadyIncluded
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added: %s with expiration date %s\n", added.Name, added.ExpirationDate)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME DATE",
		Short: "Delete a medicine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ValidateMedicineInput(args[0], args[1])
			if err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}

			deleted, err := c.Delete(cmd.Context(), key.Name, key.ExpirationDate.String())
			if errors.Is(err, client.ErrNotFound) {
				return errNotFound
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted: %s with expiration date %s\n", deleted.Name, deleted.ExpirationDate)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all medicines by expiration date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}

			medicines, err := c.List(cmd.Context())
			if err != nil {
				return err
			}

			if len(medicines) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No medicines stored.")
				return nil
			}
			return writeTable(cmd.OutOrStdout(), medicines)
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status NAME DATE",
		Short: "Check whether a medicine has expired",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ValidateMedicineInput(args[0], args[1])
			if err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}

			status, err := c.Status(cmd.Context(), key.Name, key.ExpirationDate.String())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch status.Status {
			case model.StatusExpired:
				fmt.Fprintf(out, "%s has expired\n", status.Key)
			case model.StatusNotExpired:
				fmt.Fprintf(out, "%s has not expired\n", status.Key)
			default:
				return errNotFound
			}
			return nil
		},
	}
}

func newExpiringCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "expiring [DAYS]",
		Short: "List medicines expiring within DAYS days (server default when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}

			var resp model.ExpiringResponse
			if len(args) == 1 {
				days, perr := model.ParseDays(args[0])
				if perr != nil {
					return perr
				}
				resp, err = c.Expiring(cmd.Context(), days)
			} else {
				resp, err = c.ExpiringDefault(cmd.Context())
			}
			if err != nil {
				return err
			}

			if len(resp.Medicines) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No medicines expiring within the next %d days.\n", resp.Days)
				return nil
			}
			return writeTable(cmd.OutOrStdout(), resp.Medicines)
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print a bcrypt hash for APP_BASIC_AUTH_USERS",
		Args:  cobra.ExactArgs(1),
		// Runs offline.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// writeTable prints medicines under the MEDICINE and EXPIRATION DATE
// columns. The MEDICINE column shows the record key.
func writeTable(w io.Writer, medicines []model.Medicine) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MEDICINE\tEXPIRATION DATE")
	for _, m := range medicines {
		fmt.Fprintf(tw, "%s\t%s\n", m.Key, m.ExpirationDate)
	}
	return tw.Flush()
}
