package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUploader(t *testing.T, h http.HandlerFunc) *CloudinaryUploader {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	u, err := NewCloudinaryUploader("demo", "key", "secret", "fire_reports")
	require.NoError(t, err)
	u.cld.Upload.Config.API.UploadPrefix = srv.URL
	return u
}

func TestCloudinaryUploader_Upload(t *testing.T) {
	var path string
	u := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"public_id": "fire_reports/abc", "bytes": 4, "secure_url": "https://res.cloudinary.com/demo/image/upload/fire_reports/abc.jpg"}`))
	})

	url, err := u.Upload(context.Background(), []byte{0xff, 0xd8, 0xff, 0xe0})
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/fire_reports/abc.jpg", url)
	assert.True(t, strings.Contains(path, "/demo/"), "upload goes to the configured cloud, got %s", path)
}

func TestCloudinaryUploader_RejectedUpload(t *testing.T) {
	u := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Invalid API key"}}`))
	})

	_, err := u.Upload(context.Background(), []byte{1, 2, 3})
	var ue *UploadError
	assert.True(t, errors.As(err, &ue), "got %v", err)
}

func TestCloudinaryUploader_EmptyImage(t *testing.T) {
	u, err := NewCloudinaryUploader("demo", "key", "secret", "")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), nil)
	var ue *UploadError
	assert.True(t, errors.As(err, &ue))
}
