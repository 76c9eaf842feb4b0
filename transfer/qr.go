package transfer

import (
	"github.com/skip2/go-qrcode"

	"github.com/fahmaliyi/dotp/vault"
)

const DefaultQRSize = 256

// QRCode renders the otpauth URI of e as a PNG, size pixels wide.
func QRCode(e vault.Entry, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(URI(e), qrcode.Medium, size)
}

// QRText renders the otpauth URI of e with half-block characters for display
// in a terminal.
func QRText(e vault.Entry) (string, error) {
	q, err := qrcode.New(URI(e), qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
