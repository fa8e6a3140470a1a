package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fancl20/hcert/pkg/pki"
	"github.com/fancl20/hcert/pkg/trust"
)

type keyView struct {
	KID          string            `json:"kid"`
	Algorithm    string            `json:"algorithm,omitempty"`
	ValidFrom    time.Time         `json:"valid_from"`
	ValidUntil   time.Time         `json:"valid_until"`
	ContentTypes []pki.ContentType `json:"content_types"`
}

func viewOf(k pki.TrustedKey, alg pki.Algorithm) keyView {
	return keyView{
		KID:          hex.EncodeToString(k.KID()),
		Algorithm:    alg.String(),
		ValidFrom:    k.ValidFrom(),
		ValidUntil:   k.ValidUntil(),
		ContentTypes: k.ContentTypes(),
	}
}

func viewsOf(keys []pki.TrustedKey) []keyView {
	views := make([]keyView, 0, len(keys))
	for _, k := range keys {
		var alg pki.Algorithm
		if pub, err := k.PublicKey(); err == nil {
			alg = pub.Algorithm()
		}
		views = append(views, viewOf(k, alg))
	}
	return views
}

func writeKeys(w io.Writer, views []keyView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KID\tALG\tVALID FROM\tVALID UNTIL\tTYPES")
	for _, v := range views {
		types := make([]string, len(v.ContentTypes))
		for i, ct := range v.ContentTypes {
			types[i] = string(ct)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.KID, v.Algorithm,
			v.ValidFrom.Format(time.RFC3339), v.ValidUntil.Format(time.RFC3339), strings.Join(types, ","))
	}
	return tw.Flush()
}

type envelopeView struct {
	KID        string    `json:"kid"`
	Version    int64     `json:"version"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
	Size       int       `json:"size"`
}

func envelopeViewOf(raw []byte) (envelopeView, error) {
	env, err := trust.Parse(raw)
	if err != nil {
		return envelopeView{}, err
	}
	w, err := env.Window()
	if err != nil {
		return envelopeView{}, err
	}
	return envelopeView{
		KID:        hex.EncodeToString(env.KID),
		Version:    env.Version,
		ValidFrom:  w.From,
		ValidUntil: w.Until,
		Size:       len(raw),
	}, nil
}

func writeEnvelopes(w io.Writer, views []envelopeView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNER\tVERSION\tVALID FROM\tVALID UNTIL\tSIZE")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\n", v.KID, v.Version,
			v.ValidFrom.Format(time.RFC3339), v.ValidUntil.Format(time.RFC3339), v.Size)
	}
	return tw.Flush()
}
