// Package cloudinary hosts rendered QR images so the classroom display can
// reference them by URL instead of embedding base64 blobs.
package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.cloudinary.com/v1_1"

// Client talks to the signed upload endpoint of one Cloudinary account.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Endpoint  string
	HTTP      *http.Client
	now       func() time.Time
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		Endpoint:  defaultEndpoint,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// UploadPNG stores data under publicID, overwriting an earlier image with
// the same id, and returns the hosted https URL.
func (c *Client) UploadPNG(ctx context.Context, publicID string, data []byte) (string, error) {
	params := c.signedParams(map[string]string{
		"public_id": publicID,
		"overwrite": "true",
	})

	body, contentType, err := encodeForm(params, publicID+".png", data)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/image/upload", c.Endpoint, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("cloudinary: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary: upload %s: %w", publicID, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		var e errorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return "", fmt.Errorf("cloudinary: upload %s rejected (%d): %s", publicID, resp.StatusCode, msg)
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("cloudinary: decode response: %w", err)
	}
	if out.SecureURL == "" {
		return "", fmt.Errorf("cloudinary: upload %s returned no secure_url", publicID)
	}
	return out.SecureURL, nil
}

// signedParams adds the account credentials, timestamp, folder and signature.
func (c *Client) signedParams(extra map[string]string) map[string]string {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	for k, v := range extra {
		params[k] = v
	}
	params["signature"] = c.sign(params)
	return params
}

func encodeForm(params map[string]string, filename string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("cloudinary: write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("cloudinary: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("cloudinary: write file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("cloudinary: close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// sign computes the API signature: sorted non-empty params joined with '&',
// suffixed with the secret, sha1 hex. api_key and file are not signed.
func (c *Client) sign(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		switch k {
		case "api_key", "file", "resource_type", "signature":
			continue
		}
		if v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	return fmt.Sprintf("%x", sha1.Sum([]byte(strings.Join(pairs, "&")+c.APISecret)))
}
