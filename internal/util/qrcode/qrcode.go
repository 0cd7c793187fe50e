package qrcode

import (
	"bytes"
	"errors"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const DefaultSize = 256

// Render encodes token as a square PNG QR code of size pixels.
func Render(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, errors.New("qrcode: empty token")
	}
	if size <= 0 {
		size = DefaultSize
	}
	code, err := qr.Encode(token, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
