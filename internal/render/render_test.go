package render

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"asset-pipeline/internal/domain/asset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardRenderer_ProducesAllDerivatives(t *testing.T) {
	out, err := NewCardRenderer().Render(context.Background(), Input{
		Code:        "HP-ANM-0001",
		Title:       "Cozy Capybara",
		Description: "A capybara in a bath.",
		Category:    "Animals",
	})
	require.NoError(t, err)
	require.Len(t, out, len(asset.Derivatives))

	thumb, err := png.DecodeConfig(bytes.NewReader(out[asset.DerivativeThumbnail].Body))
	require.NoError(t, err)
	assert.Equal(t, thumbnailSize, thumb.Width)
	assert.Equal(t, thumbnailSize, thumb.Height)

	preview, err := png.DecodeConfig(bytes.NewReader(out[asset.DerivativePreview].Body))
	require.NoError(t, err)
	assert.Equal(t, previewWidth, preview.Width)
	assert.Equal(t, previewHeight, preview.Height)

	doc := out[asset.DerivativeDocument]
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF-")))
}

func TestCardRenderer_RequiresCode(t *testing.T) {
	_, err := NewCardRenderer().Render(context.Background(), Input{Title: "x"})
	assert.Error(t, err)
}

func TestCardRenderer_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCardRenderer().Render(ctx, Input{Code: "HP-ANM-0001", Title: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
