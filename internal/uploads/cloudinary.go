// Package uploads wraps Cloudinary for avatar and course-thumbnail uploads.
package uploads

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

type Uploader struct {
	cld       *cloudinary.Cloudinary
	apiSecret string
	folder    string
}

func New(cloudName, apiKey, apiSecret, folder string) (*Uploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &Uploader{
		cld:       cld,
		apiSecret: apiSecret,
		folder:    strings.Trim(folder, "/"),
	}, nil
}

// UploadImage pushes an image to the configured folder and returns its
// public URL. An empty name gets a generated id.
func (u *Uploader) UploadImage(ctx context.Context, file io.Reader, name string) (string, error) {
	if name == "" {
		name = uuid.NewString()
	}

	result, err := u.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		PublicID: path.Join(u.folder, name),
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("upload image: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}

// SignParams produces the signature for a direct browser upload: the sorted
// params joined as a query string, with the API secret appended, hashed.
func (u *Uploader) SignParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, params[key]))
	}
	toSign := strings.Join(parts, "&") + u.apiSecret

	digest := sha1.Sum([]byte(toSign))
	return hex.EncodeToString(digest[:])
}
