package credential

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

// RenderDataURL renders encoded as a PNG QR symbol and returns it as a data URL
// that the member dashboard can put straight into an <img>.
func RenderDataURL(encoded string, size int) (string, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(encoded, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
