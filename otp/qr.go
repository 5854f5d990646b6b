package otp

import (
	"bytes"
	"fmt"
	"image/png"

	potp "github.com/pquerna/otp"
)

// QRRenderer renders a provisioning URI as an image.
type QRRenderer interface {
	Render(uri string) ([]byte, error)
}

// PNGRenderer renders provisioning URIs as PNG QR codes.
type PNGRenderer struct {
	Width  int
	Height int
}

// NewPNGRenderer returns a 256x256 renderer.
func NewPNGRenderer() PNGRenderer {
	return PNGRenderer{Width: 256, Height: 256}
}

func (r PNGRenderer) Render(uri string) ([]byte, error) {
	w, h := r.Width, r.Height
	if w <= 0 {
		w = 256
	}
	if h <= 0 {
		h = w
	}

	key, err := potp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("otp: parse provisioning uri: %w", err)
	}
	img, err := key.Image(w, h)
	if err != nil {
		return nil, fmt.Errorf("otp: render qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("otp: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
