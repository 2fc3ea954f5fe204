// Package blob uploads image attachments to an external media store and
// returns durable public URLs. The rest of the system treats the store
// as opaque: messages only ever carry the returned URL.
package blob

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// Store accepts a binary upload and returns a publicly fetchable URL.
type Store interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// CloudinaryStore implements Store against Cloudinary's signed upload
// endpoint.
type CloudinaryStore struct {
	cloudName string
	apiKey    string
	apiSecret string
	folder    string
	client    *http.Client
}

// NewCloudinaryStore creates a store for the given account.
func NewCloudinaryStore(cloudName, apiKey, apiSecret, folder string) *CloudinaryStore {
	return &CloudinaryStore{
		cloudName: cloudName,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		folder:    folder,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the image and returns its durable URL.
func (s *CloudinaryStore) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	// Cloudinary signs the sorted parameter string with the API secret.
	params := "public_id=" + name + "&timestamp=" + ts
	if s.folder != "" {
		params = "folder=" + s.folder + "&" + params
	}
	sum := sha1.Sum([]byte(params + s.apiSecret))
	signature := hex.EncodeToString(sum[:])

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fields := map[string]string{
		"api_key":   s.apiKey,
		"timestamp": ts,
		"public_id": name,
		"signature": signature,
	}
	if s.folder != "" {
		fields["folder"] = s.folder
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", s.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("blob: upload failed (%d): %s", resp.StatusCode, out.Error.Message)
	}
	return out.SecureURL, nil
}
