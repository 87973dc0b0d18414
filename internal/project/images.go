package project

import (
	"context"
	"errors"
	"io"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/auth"
	"github.com/onnwee/urbanscape/internal/storage"
)

// ErrStorageDisabled is returned by image operations when no object store
// was configured.
var ErrStorageDisabled = errors.New("object storage is not configured")

func previewKey(projectID int64) string {
	return storagePrefix(projectID) + "preview"
}

// UploadPreview stores the preview image of a project, replacing any
// previous one. Only JPEG and PNG are accepted.
func (s *Service) UploadPreview(ctx context.Context, user *auth.User, projectID int64, contentType string, body io.Reader) error {
	if s.storage == nil {
		return ErrStorageDisabled
	}
	p, err := s.repo.GetByID(ctx, s.pool, projectID)
	if err != nil {
		return err
	}
	if err := checkAccess(p, user, true, true); err != nil {
		return err
	}
	if err := storage.ValidateContentType(contentType); err != nil {
		return apperr.NewInvalidRequest("unsupported image type, expected JPEG or PNG")
	}
	return s.storage.Upload(ctx, previewKey(projectID), contentType, body)
}

// GetPreview streams the preview image of a project. The caller closes the
// returned reader.
func (s *Service) GetPreview(ctx context.Context, user *auth.User, projectID int64) (io.ReadCloser, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	p, err := s.repo.GetByID(ctx, s.pool, projectID)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(p, user, false, true); err != nil {
		return nil, err
	}
	readers, err := s.storage.Get(ctx, []string{previewKey(projectID)})
	if err != nil {
		return nil, err
	}
	if len(readers) == 0 || readers[0] == nil {
		return nil, apperr.NewNotFound("project preview", projectID)
	}
	return readers[0], nil
}

// PreviewURL returns a presigned URL for the preview image of a project,
// or an empty string when no preview was uploaded.
func (s *Service) PreviewURL(ctx context.Context, user *auth.User, projectID int64) (string, error) {
	if s.storage == nil {
		return "", ErrStorageDisabled
	}
	p, err := s.repo.GetByID(ctx, s.pool, projectID)
	if err != nil {
		return "", err
	}
	if err := checkAccess(p, user, false, true); err != nil {
		return "", err
	}
	urls := s.storage.Presign(ctx, []string{previewKey(projectID)})
	if len(urls) == 0 {
		return "", nil
	}
	return urls[0], nil
}

// PreviewURLs returns presigned URLs for the previews of the given
// projects, in the same order. Missing previews map to empty strings.
func (s *Service) PreviewURLs(ctx context.Context, projectIDs []int64) ([]string, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	keys := make([]string, len(projectIDs))
	for i, id := range projectIDs {
		keys[i] = previewKey(id)
	}
	return s.storage.Presign(ctx, keys), nil
}
