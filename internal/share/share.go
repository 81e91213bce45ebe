// Package share renders the link and QR code students use to reach a session.
package share

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Uploader hosts a rendered QR image and returns its public URL.
type Uploader interface {
	UploadPNG(ctx context.Context, publicID string, data []byte) (string, error)
}

// Share is what a teacher hands out for one session.
type Share struct {
	Code     string `json:"session_code"`
	Link     string `json:"link"`
	QRBase64 string `json:"qr_png_base64"`
	QRURL    string `json:"qr_url,omitempty"`
}

// Renderer builds Shares for session codes.
type Renderer struct {
	baseURL  string
	size     int
	uploader Uploader
}

// NewRenderer creates a renderer whose links are baseURL/<code>. size is the QR edge in pixels.
// uploader may be nil.
func NewRenderer(baseURL string, size int, uploader Uploader) *Renderer {
	if size <= 0 {
		size = 256
	}
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/"), size: size, uploader: uploader}
}

// Link returns the check-in URL for code.
func (r *Renderer) Link(code string) string {
	return r.baseURL + "/" + url.PathEscape(code)
}

// PNG encodes the check-in link as a QR image.
func (r *Renderer) PNG(code string) ([]byte, error) {
	png, err := qrcode.Encode(r.Link(code), qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr for %s: %w", code, err)
	}
	return png, nil
}

// Render returns the link and QR for code. A failed upload is logged and leaves QRURL empty.
func (r *Renderer) Render(ctx context.Context, code string) (Share, error) {
	png, err := r.PNG(code)
	if err != nil {
		return Share{}, err
	}
	s := Share{
		Code:     code,
		Link:     r.Link(code),
		QRBase64: base64.StdEncoding.EncodeToString(png),
	}
	if r.uploader != nil {
		hosted, err := r.uploader.UploadPNG(ctx, code, png)
		if err != nil {
			log.Printf("upload qr for %s: %v", code, err)
		} else {
			s.QRURL = hosted
		}
	}
	return s, nil
}
