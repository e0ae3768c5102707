// Package storage uploads report photos to image hosting.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// Uploader stores image bytes and returns a durable URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// UploadError wraps any failure to store a photo.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "photo upload failed: " + e.Err.Error() }

func (e *UploadError) Unwrap() error { return e.Err }

// CloudinaryUploader puts photos in one Cloudinary folder.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("configure cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &UploadError{Err: errors.New("empty image")}
	}
	publicID := uuid.NewString()
	res, err := u.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID: publicID,
		Folder:   u.folder,
	})
	if err != nil {
		return "", &UploadError{Err: err}
	}
	if res.Error.Message != "" {
		return "", &UploadError{Err: errors.New(res.Error.Message)}
	}
	if res.SecureURL == "" {
		return "", &UploadError{Err: errors.New("cloudinary returned no URL")}
	}
	log.WithFields(log.Fields{"public_id": res.PublicID, "bytes": res.Bytes}).Info("photo uploaded")
	return res.SecureURL, nil
}
