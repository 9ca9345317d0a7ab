package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"certledger/internal/certificate/models"
	jwttoken "certledger/internal/jwt_token"
	"certledger/pkg/requestcontext"
)

// NewIssueCommand creates the issue command.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <id> <recipient> <course> <date>",
		Short: "Record a certificate on the ledger",
		Long: `Validate a certificate candidate and submit it to the ledger.

The date is a calendar date (2006-01-02) interpreted in the configured
timezone. The id must not already be on the ledger. After the ledger accepts
the record the full listing is reloaded and printed.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParseCertificateID(args[0])
			if err != nil {
				return WrapExitError(ExitUsage, "invalid id", err)
			}
			req := models.IssueRequest{ID: id, RecipientName: args[1], CourseName: args[2], IssueDate: args[3]}

			ctx := requestcontext.WithOperator(cmd.Context(), rootOpts.Operator)
			a, err := rootOpts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			// The duplicate check needs the current listing.
			if err := a.Warm(ctx); err != nil {
				return err
			}
			result, err := a.Service.Issue(ctx, req)
			if err != nil {
				return err
			}

			out := rootOpts.formatter(cmd)
			if result.RefreshErr != nil {
				out.Warn("certificate %s was issued but the listing could not be reloaded: %v", id, result.RefreshErr)
			}
			views := toViews(a.Codec, result.Certificates)
			return out.Emit(struct {
				Certificate  certificateView   `json:"certificate"`
				Certificates []certificateView `json:"certificates"`
			}{toView(a.Codec, result.Record), views}, func(w io.Writer) error {
				fmt.Fprintf(w, "Certificate %s issued to %s.\n\n", id, result.Record.RecipientName)
				return writeTable(w, views)
			})
		},
	}
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Ask the ledger whether a certificate is currently valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParseCertificateID(args[0])
			if err != nil {
				return WrapExitError(ExitUsage, "invalid id", err)
			}
			ctx := requestcontext.WithOperator(cmd.Context(), rootOpts.Operator)
			a, err := rootOpts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			verdict, err := a.Service.Verify(ctx, id)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Emit(struct {
				ID     uint64 `json:"id"`
				Result string `json:"result"`
			}{uint64(id), verdict.String()}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Certificate %s: %s\n", id, verdict)
				return err
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every certificate on the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := requestcontext.WithOperator(cmd.Context(), rootOpts.Operator)
			a, err := rootOpts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Warm(ctx); err != nil {
				return err
			}
			views := toViews(a.Codec, a.Service.List(ctx))
			return rootOpts.formatter(cmd).Emit(struct {
				Certificates []certificateView `json:"certificates"`
				Count        int               `json:"count"`
			}{views, len(views)}, func(w io.Writer) error {
				return writeTable(w, views)
			})
		},
	}
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <operator>",
		Short: "Mint an operator bearer token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			tokens := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, jwttoken.OperatorAudience)
			token, err := tokens.GenerateOperatorToken(args[0], ttl)
			if err != nil {
				return WrapExitError(ExitUsage, "mint token", err)
			}
			return rootOpts.formatter(cmd).Emit(struct {
				Token     string `json:"token"`
				ExpiresIn string `json:"expires_in"`
			}{token, ttl.String()}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, token)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}
