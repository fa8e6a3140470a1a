package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fancl20/hcert/pkg/chain"
	"github.com/fancl20/hcert/pkg/trust"
)

// decodeCmd verifies a trust list and prints its entries.
func (a *app) decodeCmd() *cobra.Command {
	var (
		anchors []string
		latest  string
	)
	cmd := &cobra.Command{
		Use:   "decode [FILE]",
		Short: "Verify a trust list and print the trusted certificates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(anchors) == 0 {
				anchors = a.cfg.TrustList.Anchors
			}
			if len(anchors) == 0 {
				return fmt.Errorf("at least one trust anchor is required (--anchor or config trust_list.anchors)")
			}
			certs, err := loadCertificates(anchors)
			if err != nil {
				return err
			}
			roots := chain.NewPrefilledRepository(certs...)
			dec := trust.NewDecoder(roots, trust.Options{Logger: a.log})

			var repo *trust.Repository
			switch {
			case latest != "" && len(args) == 0:
				kid, err := hex.DecodeString(latest)
				if err != nil {
					return fmt.Errorf("invalid signer kid: %w", err)
				}
				db, err := a.openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				if repo, err = trust.LoadRepository(cmd.Context(), db, kid, dec); err != nil {
					return err
				}
			case latest == "" && len(args) == 1:
				raw, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				repo = trust.NewRepository(raw, roots, trust.Options{Logger: a.log})
			default:
				return fmt.Errorf("exactly one of FILE or --latest is required")
			}

			entries, err := repo.Certificates()
			if err != nil {
				return err
			}
			views := viewsOf(entries)
			return a.print(cmd.OutOrStdout(), views, func(w io.Writer) error {
				return writeKeys(w, views)
			})
		},
	}
	cmd.Flags().StringSliceVar(&anchors, "anchor", nil, "Trusted signer certificate PEM (repeatable; default from config)")
	cmd.Flags().StringVar(&latest, "latest", "", "Load the latest stored trust list of this signer kid (hex)")
	return cmd
}

// inspectCmd prints the envelope of a trust list without verifying it.
func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print signer, version and window of a trust list without verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			view, err := envelopeViewOf(raw)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), view, func(w io.Writer) error {
				return writeEnvelopes(w, []envelopeView{view})
			})
		},
	}
}
