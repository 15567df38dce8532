package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// StoreOptions describes where and how an object is stored.
type StoreOptions struct {
	Folder   string
	FileName string
	// ResourceType is "image" or "video".
	ResourceType string
}

// StoredObject is the result of a successful store.
type StoredObject struct {
	URL         string
	DeletableID string
}

// BlobStore defines the contract for the external media storage provider.
type BlobStore interface {
	Store(ctx context.Context, r io.Reader, opts StoreOptions) (*StoredObject, error)
	// Delete removes a previously stored object. Callers on cleanup paths
	// treat failures as non-fatal.
	Delete(ctx context.Context, deletableID string) error
}

type cloudinaryStorage struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryStorage creates a Cloudinary-backed BlobStore. With an empty
// url it reads CLOUDINARY_URL from the environment.
func NewCloudinaryStorage(cloudinaryURL, cloudName string) (BlobStore, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	if cloudinaryURL != "" {
		cld, err = cloudinary.NewFromURL(cloudinaryURL)
	} else {
		cld, err = cloudinary.New()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary client: %w", err)
	}

	cld.Config.URL.Secure = true
	if cloudName != "" {
		cld.Config.Cloud.CloudName = cloudName
	}

	return &cloudinaryStorage{cld: cld}, nil
}

func (s *cloudinaryStorage) Store(ctx context.Context, r io.Reader, opts StoreOptions) (*StoredObject, error) {
	if s == nil || s.cld == nil {
		return nil, fmt.Errorf("cloudinary storage is not initialized")
	}

	resourceType := opts.ResourceType
	if resourceType == "" {
		resourceType = "image"
	}

	base := strings.TrimSuffix(opts.FileName, filepath.Ext(opts.FileName))
	params := uploader.UploadParams{
		Folder:         opts.Folder,
		PublicID:       fmt.Sprintf("%d-%s", time.Now().UnixNano(), base),
		ResourceType:   resourceType,
		UniqueFilename: api.Bool(true),
		Overwrite:      api.Bool(false),
	}
	if resourceType == "image" {
		params.Format = "webp"
		params.Transformation = "q_auto"
	}

	resp, err := s.cld.Upload.Upload(ctx, r, params)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to cloudinary: %w", err)
	}
	if resp.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload rejected: %s", resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return nil, fmt.Errorf("cloudinary upload succeeded but secure URL is empty")
	}

	return &StoredObject{
		URL:         resp.SecureURL,
		DeletableID: EncodeDeletableID(resourceType, resp.PublicID),
	}, nil
}

func (s *cloudinaryStorage) Delete(ctx context.Context, deletableID string) error {
	if s == nil || s.cld == nil {
		return fmt.Errorf("cloudinary storage is not initialized")
	}

	resourceType, publicID := DecodeDeletableID(deletableID)
	if publicID == "" {
		return fmt.Errorf("empty deletable id")
	}

	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from cloudinary: %w", err)
	}

	if resp.Result != "ok" && resp.Result != "not found" {
		return fmt.Errorf("cloudinary destroy api returned result: %s", resp.Result)
	}

	return nil
}

// EncodeDeletableID packs the resource type with the public id, since
// Cloudinary needs both to destroy a video.
func EncodeDeletableID(resourceType, publicID string) string {
	return resourceType + ":" + publicID
}

// DecodeDeletableID reverses EncodeDeletableID. Bare public ids are treated
// as images.
func DecodeDeletableID(id string) (resourceType, publicID string) {
	if kind, rest, ok := strings.Cut(id, ":"); ok && (kind == "image" || kind == "video") {
		return kind, rest
	}
	return "image", id
}
