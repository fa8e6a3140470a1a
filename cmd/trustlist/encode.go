package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fancl20/hcert/pkg/chain"
	"github.com/fancl20/hcert/pkg/pki"
	"github.com/fancl20/hcert/pkg/trust"
)

// encodeCmd signs a trust list over the given certificates.
func (a *app) encodeCmd() *cobra.Command {
	var (
		keyFile  string
		certFile string
		version  int
		validity time.Duration
		out      string
		store    bool
	)
	cmd := &cobra.Command{
		Use:   "encode CERT_PEM...",
		Short: "Sign a trust list containing the given certificates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if version == 0 {
				version = a.cfg.TrustList.Version
			}
			if validity == 0 {
				validity = a.cfg.TrustList.Validity
			}
			signer, err := a.loadSigner(keyFile, certFile)
			if err != nil {
				return err
			}
			certs, err := loadCertificates(args)
			if err != nil {
				return err
			}

			opts := trust.Options{Validity: validity, Logger: a.log}
			var raw []byte
			switch version {
			case 1:
				raw, err = trust.NewEncoderV1(signer, opts).Encode(certs)
			case 2:
				raw, err = trust.NewEncoderV2(signer, opts).Encode(certs)
			default:
				return fmt.Errorf("unsupported trust list version %d", version)
			}
			if err != nil {
				return err
			}

			if store {
				db, err := a.openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				dec := trust.NewDecoder(chain.NewCryptoServiceRepository(signer), opts)
				inserted, err := trust.InsertVerified(cmd.Context(), db, dec, raw)
				if err != nil {
					return fmt.Errorf("failed to store trust list: %w", err)
				}
				a.log.Info("Stored trust list", zap.String("store", a.cfg.Store.Path), zap.Bool("inserted", inserted))
			}

			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write(raw)
				return err
			}
			if err := os.WriteFile(out, raw, 0644); err != nil {
				return fmt.Errorf("failed to write trust list: %w", err)
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
	cmd.Flags().StringVar(&keyFile, "key", "", "Signer private key PEM (default from config)")
	cmd.Flags().StringVar(&certFile, "cert", "", "Signer certificate PEM (default from config)")
	cmd.Flags().IntVar(&version, "version", 0, "Trust list version: 1 or 2 (default from config)")
	cmd.Flags().DurationVar(&validity, "validity", 0, "Trust list validity (default from config)")
	cmd.Flags().StringVar(&out, "out", "", "Output file; stdout if empty")
	cmd.Flags().BoolVar(&store, "store", false, "Also insert the trust list into the store")
	return cmd
}

func (a *app) loadSigner(keyFile, certFile string) (chain.CryptoService, error) {
	if keyFile == "" {
		keyFile = a.cfg.Signer.KeyFile
	}
	if certFile == "" {
		certFile = a.cfg.Signer.CertFile
	}
	if keyFile == "" || certFile == "" {
		return nil, fmt.Errorf("signer key and certificate are required (--key/--cert or config signer)")
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	return chain.NewFileBasedCryptoService(string(keyPEM), string(certPEM))
}

func loadCertificates(files []string) ([]pki.TrustedKey, error) {
	certs := make([]pki.TrustedKey, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		cert, err := pki.ParseCertificatePEM(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
