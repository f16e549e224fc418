// Package storage keeps uploaded assets on local disk under the uploads
// root, one subdirectory per kind. Files get random names so an uploaded
// filename can never clobber another user's asset, and the database only
// ever stores the relative URL.
package storage

import (
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned when a file's extension is not in the
// allow-list for its kind.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrFileTooLarge is returned when a file exceeds the size cap for its kind.
var ErrFileTooLarge = errors.New("file too large")

const (
	profilePicturesDir = "profile-pictures"
	iconsDir           = "icons"
	modelsDir          = "models"

	maxImageSize = 5 << 20  // profile pictures and icons
	maxModelSize = 20 << 20 // 3D models
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}
var modelExts = map[string]bool{".obj": true, ".glb": true, ".fbx": true}

// Store writes uploads below Root and serves them back by relative URL.
type Store struct {
	Root string
}

// New creates the upload directories if needed.
func New(root string) (*Store, error) {
	for _, dir := range []string{profilePicturesDir, iconsDir, modelsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{Root: root}, nil
}

// SaveProfilePicture stores an avatar image and returns its relative URL.
func (s *Store) SaveProfilePicture(fh *multipart.FileHeader) (string, error) {
	return s.save(fh, profilePicturesDir, imageExts, maxImageSize)
}

// SaveIcon stores a POI icon image and returns its relative URL.
func (s *Store) SaveIcon(fh *multipart.FileHeader) (string, error) {
	return s.save(fh, iconsDir, imageExts, maxImageSize)
}

// SaveModel stores a POI 3D model (OBJ, GLB or FBX) and returns its
// relative URL.
func (s *Store) SaveModel(fh *multipart.FileHeader) (string, error) {
	return s.save(fh, modelsDir, modelExts, maxModelSize)
}

func (s *Store) save(fh *multipart.FileHeader, dir string, allowed map[string]bool, maxSize int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowed[ext] {
		return "", ErrUnsupportedType
	}
	if fh.Size > maxSize {
		return "", ErrFileTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.Root, dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return "/uploads/" + dir + "/" + name, nil
}

// Remove deletes the file behind a previously stored relative URL. URLs
// outside /uploads (external icon/model links) are left alone, and a file
// already gone is not an error.
func (s *Store) Remove(relURL string) error {
	if relURL == "" || !strings.HasPrefix(relURL, "/uploads/") {
		return nil
	}
	rel := path.Clean(strings.TrimPrefix(relURL, "/uploads/"))
	// A cleaned path that still climbs upward would escape the root.
	if rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	full := filepath.Join(s.Root, filepath.FromSlash(rel))
	err := os.Remove(full)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
