// Package qrcode renders payment instrument codes as PNG images.
package qrcode

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"go.uber.org/fx"
)

const (
	DefaultSize = 256
	MinSize     = 64
	MaxSize     = 1024
)

var Module = fx.Module("providers.qrcode",
	fx.Provide(New),
)

var ErrEmptyContent = errors.New("qr content is empty")

type Renderer interface {
	PNG(content string, size int) ([]byte, error)
}

type pngRenderer struct{}

func New() Renderer {
	return pngRenderer{}
}

// PNG encodes content with medium error correction and scales it to a
// size x size square. Out of range sizes are clamped.
func (pngRenderer) PNG(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	size = clampSize(size)

	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func clampSize(size int) int {
	switch {
	case size <= 0:
		return DefaultSize
	case size < MinSize:
		return MinSize
	case size > MaxSize:
		return MaxSize
	default:
		return size
	}
}
