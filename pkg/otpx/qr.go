package otpx

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRRenderer turns a provisioning URI into an image an authenticator app
// can scan.
type QRRenderer interface {
	Render(uri string) ([]byte, error)
}

// PNGRenderer renders square PNG QR codes.
type PNGRenderer struct {
	// Size is the image width and height in pixels. Defaults to 256.
	Size int
}

// Render encodes uri with medium error recovery.
func (r PNGRenderer) Render(uri string) ([]byte, error) {
	size := r.Size
	if size <= 0 {
		size = 256
	}

	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("otpx: render QR code: %w", err)
	}
	return png, nil
}
