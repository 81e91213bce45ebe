package share

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type stubUploader struct {
	gotID string
	url   string
	err   error
}

func (u *stubUploader) UploadPNG(_ context.Context, id string, data []byte) (string, error) {
	u.gotID = id
	if !bytes.HasPrefix(data, pngMagic) {
		return "", errors.New("not a png")
	}
	return u.url, u.err
}

func TestRender(t *testing.T) {
	r := NewRenderer("https://checkin.example/v1/checkin/", 128, nil)
	s, err := r.Render(context.Background(), "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, "https://checkin.example/v1/checkin/ABCD2345", s.Link)
	assert.Empty(t, s.QRURL)

	png, err := base64.StdEncoding.DecodeString(s.QRBase64)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestRenderUploads(t *testing.T) {
	up := &stubUploader{url: "https://cdn.example/ABCD2345.png"}
	r := NewRenderer("http://localhost/v1/checkin", 0, up)
	s, err := r.Render(context.Background(), "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, "ABCD2345", up.gotID)
	assert.Equal(t, "https://cdn.example/ABCD2345.png", s.QRURL)
}

func TestRenderUploadFailureKeepsInlineQR(t *testing.T) {
	up := &stubUploader{err: errors.New("boom")}
	r := NewRenderer("http://localhost/v1/checkin", 0, up)
	s, err := r.Render(context.Background(), "ABCD2345")
	require.NoError(t, err)
	assert.Empty(t, s.QRURL)
	assert.NotEmpty(t, s.QRBase64)
}
