// Package watermark embeds a per-recipient trace marker into delivered PDFs.
// The marker is a traceability aid, not access control.
package watermark

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const (
	// TraceProperty is the document info key that carries the marker.
	TraceProperty = "X-Asset-Trace"

	firstPage         = "1"
	hashedIdentityLen = 16

	// Near-transparent, 1pt, rotated, tucked into the bottom-left margin.
	textDescription = "fontname:Helvetica, points:1, scalefactor:1 abs, rotation:33, " +
		"opacity:0.01, position:bl, offset:9 6, fillcolor:#7f7f7f"

	errCountPagesFmt   = "failed to read document: %w"
	errParseTextFmt    = "failed to build trace text: %w"
	errAddTextFmt      = "failed to add trace text: %w"
	errAddPropertyFmt  = "failed to add trace property: %w"
	errWriteFmt        = "failed to write document: %w"
	errReadPropertyFmt = "failed to read trace property: %w"
	errEmptyIdentity   = "identity cannot be empty"
	errMissingInfo     = "document info dict is missing"
)

func init() {
	api.DisableConfigDir()
}

type Watermarker struct {
	anchor       string
	hashIdentity bool
}

func New(anchor string, hashIdentity bool) *Watermarker {
	return &Watermarker{anchor: anchor, hashIdentity: hashIdentity}
}

// Marker is the text embedded for a recipient: the anchor followed by the
// plain or hashed identity.
func (w *Watermarker) Marker(identity string) string {
	if w.hashIdentity {
		sum := sha256.Sum256([]byte(identity))
		identity = hex.EncodeToString(sum[:])[:hashedIdentityLen]
	}
	return w.anchor + " " + identity
}

// Apply returns a copy of doc carrying the recipient marker on page 1 and in
// the document info. A document with no pages is returned unchanged.
func (w *Watermarker) Apply(doc []byte, identity string) ([]byte, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, fmt.Errorf(errEmptyIdentity)
	}

	pages, err := api.PageCount(bytes.NewReader(doc), newConfiguration())
	if err != nil {
		return nil, fmt.Errorf(errCountPagesFmt, err)
	}
	if pages == 0 {
		return doc, nil
	}

	marker := w.Marker(identity)

	wm, err := api.TextWatermark(marker, textDescription, false, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf(errParseTextFmt, err)
	}

	var stamped bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &stamped, []string{firstPage}, wm, newConfiguration()); err != nil {
		return nil, fmt.Errorf(errAddTextFmt, err)
	}

	return withTraceProperty(stamped.Bytes(), marker)
}

// withTraceProperty records marker in the document info as a plain literal.
// Object and xref streams are disabled so the info dict stays uncompressed
// and the marker can be found by scanning the output bytes.
func withTraceProperty(doc []byte, marker string) ([]byte, error) {
	conf := newConfiguration()
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc), conf)
	if err != nil {
		return nil, fmt.Errorf(errAddPropertyFmt, err)
	}

	if ctx.Info == nil {
		ir, err := ctx.IndRefForNewObject(types.NewDict())
		if err != nil {
			return nil, fmt.Errorf(errAddPropertyFmt, err)
		}
		ctx.Info = ir
	}
	info, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil {
		return nil, fmt.Errorf(errAddPropertyFmt, err)
	}
	if info == nil {
		return nil, fmt.Errorf(errMissingInfo)
	}

	literal, err := types.Escape(marker)
	if err != nil {
		return nil, fmt.Errorf(errAddPropertyFmt, err)
	}
	info[TraceProperty] = types.StringLiteral(*literal)

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, fmt.Errorf(errWriteFmt, err)
	}
	return out.Bytes(), nil
}

// Trace recovers the marker from a delivered document, or "" if none.
func Trace(doc []byte) (string, error) {
	props, err := api.Properties(bytes.NewReader(doc), newConfiguration())
	if err != nil {
		return "", fmt.Errorf(errReadPropertyFmt, err)
	}
	return props[TraceProperty], nil
}

// newConfiguration returns a fresh configuration per call; pdfcpu records
// the running command on it, so sharing one across goroutines races.
func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
