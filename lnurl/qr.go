package lnurl

import (
	"github.com/go-errors/errors"
	"github.com/skip2/go-qrcode"
)

// QRCode renders the LNURL of a URL as a PNG image.
func QRCode(rawUrl string, size int) ([]byte, error) {
	encoded, err := Encode(rawUrl)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(encoded, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Errorf("Could not render qr code: %v", err)
	}

	return png, nil
}
