package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"knitkart/internal/ids"
	"knitkart/internal/media/sniffer"
	"knitkart/internal/models"
	"knitkart/internal/security"
)

var (
	ErrEmptyUpload      = errors.New("empty file")
	ErrUploadTooLarge   = errors.New("file too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrContentMismatch  = errors.New("declared content type does not match file")
	ErrImageNotOwned    = errors.New("image does not belong to seller")
)

type ObjectPutter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error)
	Bucket() string
}

type ImageStore interface {
	Create(ctx context.Context, image models.ProductImage) error
	ListByOwnerKeys(ctx context.Context, ownerID string, keys []string) ([]models.ProductImage, error)
}

type UploadInput struct {
	OwnerID      string
	File         io.Reader
	DeclaredType string
}

type UploadResult struct {
	Image models.ProductImage
	Key   string
}

type UploadConfig struct {
	MaxSize       int64
	SigningSecret string
}

type UploadService struct {
	images  ImageStore
	objects ObjectPutter
	cfg     UploadConfig
	log     zerolog.Logger
	now     func() time.Time
}

func NewUploadService(images ImageStore, objects ObjectPutter, cfg UploadConfig, log zerolog.Logger) *UploadService {
	return &UploadService{
		images:  images,
		objects: objects,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

func (s *UploadService) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	if input.File == nil {
		return UploadResult{}, ErrEmptyUpload
	}

	reader := input.File
	if s.cfg.MaxSize > 0 {
		reader = io.LimitReader(reader, s.cfg.MaxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return UploadResult{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return UploadResult{}, ErrEmptyUpload
	}
	if s.cfg.MaxSize > 0 && int64(len(data)) > s.cfg.MaxSize {
		return UploadResult{}, ErrUploadTooLarge
	}

	head := data
	if len(head) > sniffer.HeadSize {
		head = head[:sniffer.HeadSize]
	}
	detected, err := sniffer.DetectHead(head)
	if err != nil {
		return UploadResult{}, ErrUnsupportedImage
	}
	declared := sniffer.MimeTypeFromHTTP(http.Header{"Content-Type": []string{input.DeclaredType}})
	if declared != "" && declared != "application/octet-stream" && declared != detected.MIME {
		return UploadResult{}, fmt.Errorf("%w: declared %s, actual %s", ErrContentMismatch, declared, detected.MIME)
	}

	imageID := ids.New()
	objectKey := s.buildObjectKey(imageID, detected.Extension())

	size, err := s.objects.Put(ctx, objectKey, bytes.NewReader(data), int64(len(data)), detected.MIME)
	if err != nil {
		return UploadResult{}, err
	}

	sum := sha256.Sum256(data)
	image := models.ProductImage{
		ID:        imageID,
		OwnerID:   input.OwnerID,
		Bucket:    s.objects.Bucket(),
		ObjectKey: objectKey,
		Format:    string(detected.Type),
		SizeBytes: size,
		Checksum:  sum[:],
		Signature: security.SignResource(s.cfg.SigningSecret, input.OwnerID, objectKey),
		CreatedAt: s.now().UTC(),
	}

	if err := s.images.Create(ctx, image); err != nil {
		return UploadResult{}, fmt.Errorf("save metadata: %w", err)
	}

	s.log.Info().
		Str("image_id", imageID).
		Str("owner_id", input.OwnerID).
		Int64("size", size).
		Msg("product image uploaded")

	return UploadResult{Image: image, Key: objectKey}, nil
}

// CheckOwnership fails unless every stored key was uploaded by ownerID.
// Absolute URLs are not stored objects and pass through.
func (s *UploadService) CheckOwnership(ctx context.Context, ownerID string, refs []string) error {
	var keys []string
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref != "" && !isAbsoluteURL(ref) {
			keys = append(keys, ref)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	owned, err := s.images.ListByOwnerKeys(ctx, ownerID, keys)
	if err != nil {
		return fmt.Errorf("list owned images: %w", err)
	}
	found := make(map[string]struct{}, len(owned))
	for _, image := range owned {
		if security.VerifyResource(s.cfg.SigningSecret, image.Signature, image.OwnerID, image.ObjectKey) {
			found[image.ObjectKey] = struct{}{}
		}
	}
	for _, key := range keys {
		if _, ok := found[key]; !ok {
			return fmt.Errorf("%w: %s", ErrImageNotOwned, key)
		}
	}
	return nil
}

func (s *UploadService) buildObjectKey(imageID string, ext string) string {
	datePrefix := s.now().UTC().Format("2006/01/02")
	return path.Join(datePrefix, fmt.Sprintf("%s.%s", imageID, ext))
}

func isAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}
