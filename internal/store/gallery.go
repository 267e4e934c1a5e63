package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Key prefixes inside the bucket.
const (
	GalleryPrefix   = "gallery"
	TemplatePrefix  = "templates"
	SnapshotPrefix  = "processed-templates"
	pngContentType  = "image/png"
	jpegContentType = "image/jpeg"
)

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// SaveGalleryImage uploads a PNG and records it. If the row cannot be
// written the uploaded object is removed again.
func (s *Store) SaveGalleryImage(ctx context.Context, png []byte, userID *string) (*GalleryImage, error) {
	if len(png) == 0 {
		return nil, ErrEmptyImage
	}

	key := s.objectKey(GalleryPrefix, ".png")
	if err := s.putObject(ctx, key, png, pngContentType); err != nil {
		return nil, fmt.Errorf("upload gallery image: %w", err)
	}

	img := &GalleryImage{
		ID:          uuid.NewString(),
		StorageURL:  s.PublicURL(key),
		StoragePath: key,
		UserID:      userID,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(img).Error; err != nil {
		if delErr := s.deleteObject(ctx, key); delErr != nil {
			s.log.Warn("Could not remove orphaned gallery object", zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("save gallery image: %w", err)
	}

	s.log.Info("Saved gallery image", zap.String("id", img.ID), zap.String("key", key), zap.Int("bytes", len(png)))
	return img, nil
}

// ListGalleryImages returns every gallery image, newest first.
func (s *Store) ListGalleryImages(ctx context.Context) ([]GalleryImage, error) {
	images := []GalleryImage{}
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("list gallery images: %w", err)
	}
	return images, nil
}

// GetGalleryImage returns one image or ErrNotFound.
func (s *Store) GetGalleryImage(ctx context.Context, id string) (*GalleryImage, error) {
	var img GalleryImage
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get gallery image: %w", err)
	}
	return &img, nil
}

// DeleteGalleryImage removes the stored object and then the row.
func (s *Store) DeleteGalleryImage(ctx context.Context, id string) error {
	img, err := s.GetGalleryImage(ctx, id)
	if err != nil {
		return err
	}

	if img.StoragePath != "" {
		if err := s.deleteObject(ctx, img.StoragePath); err != nil {
			s.log.Warn("Could not remove gallery object", zap.String("key", img.StoragePath), zap.Error(err))
		}
	}

	if err := s.db.WithContext(ctx).Delete(&GalleryImage{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete gallery image: %w", err)
	}
	s.log.Info("Deleted gallery image", zap.String("id", id))
	return nil
}

// CountGalleryImages returns the number of saved images.
func (s *Store) CountGalleryImages(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&GalleryImage{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count gallery images: %w", err)
	}
	return n, nil
}

// SaveTemplate stores an uploaded original under templates/. ext must be
// .png, .jpg or .jpeg.
func (s *Store) SaveTemplate(ctx context.Context, data []byte, ext string) (*TemplateUpload, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	ext = strings.ToLower(ext)
	var contentType string
	switch ext {
	case ".png":
		contentType = pngContentType
	case ".jpg", ".jpeg":
		contentType = jpegContentType
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExt, ext)
	}

	key := s.objectKey(TemplatePrefix, ext)
	if err := s.putObject(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("upload template: %w", err)
	}
	return &TemplateUpload{FileName: key, URL: s.PublicURL(key)}, nil
}

// SnapshotOutline stores the PNG input and output of an outline run under
// processed-templates/.
func (s *Store) SnapshotOutline(ctx context.Context, input, output []byte) (*Snapshot, error) {
	stamp := fmt.Sprintf("%d_%s", s.now().UnixMilli(), randomSuffix())
	snap := &Snapshot{
		InputKey:  fmt.Sprintf("%s/input_%s.png", SnapshotPrefix, stamp),
		OutputKey: fmt.Sprintf("%s/%s.png", SnapshotPrefix, stamp),
	}

	if err := s.putObject(ctx, snap.InputKey, input, pngContentType); err != nil {
		return nil, fmt.Errorf("upload outline input: %w", err)
	}
	if err := s.putObject(ctx, snap.OutputKey, output, pngContentType); err != nil {
		return nil, fmt.Errorf("upload outline output: %w", err)
	}
	snap.InputURL = s.PublicURL(snap.InputKey)
	snap.OutputURL = s.PublicURL(snap.OutputKey)
	return snap, nil
}
