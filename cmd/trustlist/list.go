package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fancl20/hcert/pkg/trust"
)

// listCmd lists the stored trust lists.
func (a *app) listCmd() *cobra.Command {
	var (
		signer string
		at     string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored trust lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var q trust.Query
			if signer != "" {
				kid, err := hex.DecodeString(signer)
				if err != nil {
					return fmt.Errorf("invalid signer kid: %w", err)
				}
				q.SignerKID = kid
			}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid time: %w", err)
				}
				q.Validity = trust.Window{From: ts, Until: ts}
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			lists, err := db.TrustLists(cmd.Context(), q)
			if err != nil {
				return err
			}
			views := make([]envelopeView, 0, len(lists))
			for _, raw := range lists {
				v, err := envelopeViewOf(raw)
				if err != nil {
					return err
				}
				views = append(views, v)
			}
			return a.print(cmd.OutOrStdout(), views, func(w io.Writer) error {
				return writeEnvelopes(w, views)
			})
		},
	}
	cmd.Flags().StringVar(&signer, "signer", "", "Only lists of this signer kid (hex)")
	cmd.Flags().StringVar(&at, "at", "", "Only lists valid at this RFC 3339 time")
	return cmd
}
