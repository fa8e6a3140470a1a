// Command trustlist signs, verifies and stores health certificate trust
// lists.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fancl20/hcert/internal/config"
	"github.com/fancl20/hcert/internal/logger"
	"github.com/fancl20/hcert/pkg/trust"
	"github.com/fancl20/hcert/pkg/trust/impl/bbolt"
)

const version = "0.1.0"

type app struct {
	configPath string
	output     string

	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "trustlist",
		Short:        "Sign, verify and store health certificate trust lists",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath, ".env")
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			l, err := logger.New(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, Name: "trustlist"})
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			a.cfg, a.log = cfg, l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.output, "output", "text", "Output format: text, json")

	root.AddCommand(a.keygenCmd())
	root.AddCommand(a.encodeCmd())
	root.AddCommand(a.decodeCmd())
	root.AddCommand(a.inspectCmd())
	root.AddCommand(a.listCmd())
	root.AddCommand(a.validateCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trustlist version %s\n", version)
		},
	}
}

func (a *app) openDB() (trust.DB, error) {
	db, err := bbolt.New(a.cfg.Store.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open trust list store %s: %w", a.cfg.Store.Path, err)
	}
	return db, nil
}

// print writes v as JSON, or calls text for the text format.
func (a *app) print(w io.Writer, v any, text func(io.Writer) error) error {
	if a.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
