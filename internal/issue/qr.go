package issue

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// RenderPNG renders the wire string as a QR PNG for display or print.
func RenderPNG(wire string) ([]byte, error) {
	png, err := qrcode.Encode(wire, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render QR: %w", err)
	}
	return png, nil
}
