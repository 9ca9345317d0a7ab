// Package cli implements certctl, the operator console: issue, verify and
// list certificates against the configured ledger, and mint operator tokens.
package cli

import (
	"context"
	"fmt"
	"os/user"
	"slices"

	"github.com/spf13/cobra"

	"certledger/internal/app"
	"certledger/internal/platform/config"
	"certledger/internal/platform/logger"
)

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string
	// Operator is recorded as the actor of audit events.
	Operator string

	appOpts []app.Option
}

// NewRootCommand creates the certctl command tree. appOpts are applied to
// every App the commands open.
func NewRootCommand(appOpts ...app.Option) *cobra.Command {
	opts := &RootOptions{appOpts: appOpts}

	cmd := &cobra.Command{
		Use:   "certctl",
		Short: "Issue and verify course-completion certificates on the ledger",
		Long: `certctl records course-completion certificates on the certificate
ledger and verifies them by id. Ledger, timezone and audit settings come from
the file named by --config (or CERTLEDGER_CONFIG) and CERTLEDGER_* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (defaults to $CERTLEDGER_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Operator, "operator", currentUser(), "operator name recorded in audit events")

	cmd.AddCommand(NewIssueCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.LoadFile(o.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, WrapExitError(ExitUsage, "load configuration", err)
	}
	return cfg, nil
}

// openApp connects the ledger. Logs go to the command's stderr so JSON output
// stays clean.
func (o *RootOptions) openApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	opts := append([]app.Option{app.WithLogger(logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel))}, o.appOpts...)
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return nil, WrapExitError(ExitUnavailable, "open ledger", err)
	}
	return a, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
}
