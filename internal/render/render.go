// Package render produces the derivative files for an asset. The reference
// implementation draws a titled card; it does not rasterize vector sources.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"strings"

	"asset-pipeline/internal/domain/asset"

	"github.com/fogleman/gg"
	"github.com/jung-kurt/gofpdf"
)

const (
	thumbnailSize = 512
	previewWidth  = 1200
	previewHeight = 630

	contentTypePNG = "image/png"
	contentTypePDF = "application/pdf"

	pdfImageName = "thumbnail"
	pdfMarginMM  = 20.0
	pdfImageMM   = 120.0
)

// Input is what a renderer needs to know about one asset.
type Input struct {
	Code        string
	Title       string
	Description string
	Category    string
	Source      string
}

type File struct {
	ContentType string
	Body        []byte
}

type Renderer interface {
	Render(ctx context.Context, in Input) (map[asset.Derivative]File, error)
}

// CardRenderer draws every derivative from the asset's metadata.
type CardRenderer struct {
	background color.Color
	foreground color.Color
}

func NewCardRenderer() *CardRenderer {
	return &CardRenderer{
		background: color.RGBA{R: 0xf4, G: 0xef, B: 0xe6, A: 0xff},
		foreground: color.RGBA{R: 0x2b, G: 0x2b, B: 0x2b, A: 0xff},
	}
}

func (r *CardRenderer) Render(ctx context.Context, in Input) (map[asset.Derivative]File, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, fmt.Errorf("render: asset code is required")
	}

	thumb, err := r.card(in, thumbnailSize, thumbnailSize)
	if err != nil {
		return nil, fmt.Errorf("render thumbnail: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	preview, err := r.card(in, previewWidth, previewHeight)
	if err != nil {
		return nil, fmt.Errorf("render preview: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := r.document(in, thumb)
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}

	return map[asset.Derivative]File{
		asset.DerivativeThumbnail: {ContentType: contentTypePNG, Body: thumb},
		asset.DerivativePreview:   {ContentType: contentTypePNG, Body: preview},
		asset.DerivativeDocument:  {ContentType: contentTypePDF, Body: doc},
	}, nil
}

func (r *CardRenderer) card(in Input, width, height int) ([]byte, error) {
	dc := gg.NewContext(width, height)
	w, h := float64(width), float64(height)

	dc.SetColor(r.background)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	inset := h * 0.06
	dc.SetColor(r.foreground)
	dc.SetLineWidth(4)
	dc.DrawRoundedRectangle(inset, inset, w-2*inset, h-2*inset, inset/2)
	dc.Stroke()

	dc.DrawStringWrapped(in.Title, w/2, h/2, 0.5, 0.5, w-4*inset, 1.5, gg.AlignCenter)
	dc.DrawStringAnchored(in.Code, w/2, h-2*inset, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *CardRenderer) document(in Input, thumbnail []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(in.Title, true)
	pdf.SetSubject(in.Code, true)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.MultiCell(0, 10, in.Title, "", "C", false)

	if in.Category != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, in.Category, "", 1, "C", false, 0, "")
	}

	pdf.RegisterImageOptionsReader(pdfImageName, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(thumbnail))
	pdf.ImageOptions(pdfImageName, (pageW-pdfImageMM)/2, pdf.GetY()+pdfMarginMM/2, pdfImageMM, 0, true, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	if in.Description != "" {
		pdf.Ln(pdfMarginMM / 2)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, in.Description, "", "L", false)
	}

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetY(-pdfMarginMM)
	pdf.CellFormat(0, 6, in.Code, "", 0, "C", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
