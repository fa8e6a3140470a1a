package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fancl20/hcert/pkg/chain"
	"github.com/fancl20/hcert/pkg/pki"
)

// keygenCmd creates a key pair with a self-signed certificate.
func (a *app) keygenCmd() *cobra.Command {
	var (
		alg      string
		keyOut   string
		certOut  string
		cn       string
		types    string
		validity time.Duration
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key pair and a self-signed certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := chain.RandomOptions{Validity: validity, CommonName: cn}
			if types != "" {
				for _, s := range strings.Split(types, ",") {
					ct, err := pki.ParseContentType(strings.TrimSpace(s))
					if err != nil {
						return err
					}
					opts.ContentTypes = append(opts.ContentTypes, ct)
				}
			}

			var (
				cs  *chain.KeyCryptoService
				err error
			)
			switch strings.ToLower(alg) {
			case "es256":
				cs, err = chain.NewRandomECCryptoService(opts)
			case "ps256":
				cs, err = chain.NewRandomRSACryptoService(opts)
			default:
				return fmt.Errorf("unsupported algorithm %q, want es256 or ps256", alg)
			}
			if err != nil {
				return err
			}

			keyPEM, err := cs.ExportPrivateKeyPEM()
			if err != nil {
				return err
			}
			if err := os.WriteFile(keyOut, []byte(keyPEM), 0600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(certOut, []byte(cs.ExportCertificatePEM()), 0644); err != nil {
				return fmt.Errorf("failed to write certificate: %w", err)
			}
			cert := cs.Certificate()
			a.log.Info("Generated key pair",
				zap.String("algorithm", cs.SigningKey().Algorithm().String()),
				zap.Binary("kid", cert.KID()),
				zap.String("key", keyOut),
				zap.String("cert", certOut),
			)
			view := viewOf(cert, cs.SigningKey().Algorithm())
			return a.print(cmd.OutOrStdout(), view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "kid %s\n", view.KID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&alg, "alg", "es256", "Signature algorithm: es256, ps256")
	cmd.Flags().StringVar(&keyOut, "key-out", "", "Output file of the PKCS #8 private key (required)")
	cmd.Flags().StringVar(&certOut, "cert-out", "", "Output file of the certificate (required)")
	cmd.Flags().StringVar(&cn, "cn", "", "Common name of the certificate")
	cmd.Flags().StringVar(&types, "content-types", "", "Comma separated content types (t, v, r); empty for all")
	cmd.Flags().DurationVar(&validity, "validity", chain.DefaultCertificateValidity, "Certificate validity")
	cmd.MarkFlagRequired("key-out")
	cmd.MarkFlagRequired("cert-out")
	return cmd
}
