package qrcode

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNGRendersSquareImage(t *testing.T) {
	body, err := New().PNG("00020126580014br.gov.bcb.pix0136MP-0123456789ABCDEF", 200)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestPNGRejectsEmptyContent(t *testing.T) {
	_, err := New().PNG("  ", 100)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestClampSize(t *testing.T) {
	assert.Equal(t, DefaultSize, clampSize(0))
	assert.Equal(t, MinSize, clampSize(10))
	assert.Equal(t, MaxSize, clampSize(5000))
	assert.Equal(t, 300, clampSize(300))
}
