package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/spverify/internal/apicheck"
	"github.com/kuitang/spverify/internal/config"
	"github.com/kuitang/spverify/internal/errs"
)

// APICheckOptions holds flags for the apicheck command.
type APICheckOptions struct {
	APIURL   string
	Password string
	JSON     bool
}

// NewAPICheckCommand creates the apicheck command.
func NewAPICheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &APICheckOptions{}

	cmd := &cobra.Command{
		Use:   "apicheck",
		Short: "Run the end-to-end quote flow against the HTTP API",
		Long: `Register a fresh service provider, onboard it, submit a matching project as
a homeowner, then quote it and confirm the quote is visible on both sides.
Every run uses new unique email addresses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.Overrides{APIURL: opts.APIURL, LogLevel: rootOpts.LogLevel})
			if err != nil {
				return err
			}

			res := apicheck.Run(cmd.Context(), apicheck.Options{
				APIURL:   cfg.APIURL,
				Password: opts.Password,
				RPS:      cfg.APIRPS,
			})

			out := cmd.OutOrStdout()
			if opts.JSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return errs.Wrap(errs.IO, "write result", err)
				}
			} else {
				for _, s := range res.Stages {
					verdict := "PASS"
					if !s.Passed {
						verdict = "FAIL"
					}
					fmt.Fprintf(out, "%s  %-16s %8s  %s\n", verdict, s.Stage, s.Duration.Round(time.Millisecond), s.Detail)
				}
			}
			if res.Err != nil {
				return res.Err
			}
			fmt.Fprintf(out, "\nAPI flow verified: project %s quoted by %s (%s).\n", res.ProjectID, res.SPID, res.QuoteStatus)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.APIURL, "api-url", "", "API base URL")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password for the generated provider account")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the result as JSON")
	return cmd
}
