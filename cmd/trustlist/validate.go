package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fancl20/hcert/pkg/schema"
)

// validateCmd checks a CBOR health certificate payload against its schema.
func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a CBOR health certificate payload against the DCC schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			gc, err := schema.NewService(schema.WithLogger(a.log)).Validate(payload)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), gc, func(w io.Writer) error {
				b, err := json.Marshal(gc)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "valid (schema %s)\n%s\n", gc.SchemaVersion, b)
				return err
			})
		},
	}
}
