package storage

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxImageBytes is the upload limit for a single image.
const MaxImageBytes = 5 << 20

var (
	// ErrUnsupportedImage is returned for files that are not jpg, png or gif.
	ErrUnsupportedImage = errors.New("only image files are allowed")
	// ErrImageTypeMismatch is returned when an image's content is not the
	// format its extension names.
	ErrImageTypeMismatch = errors.New("image content does not match its file extension")
	// ErrInvalidKey is returned for keys that could escape the bucket.
	ErrInvalidKey = errors.New("invalid object key")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// ImageExt returns the extension of filename if it names an accepted image
// type. The extension keeps its case.
func ImageExt(filename string) (string, error) {
	ext := filepath.Ext(strings.TrimSpace(filename))
	if _, ok := allowedImageTypes[strings.ToLower(ext)]; !ok {
		return "", ErrUnsupportedImage
	}
	return ext, nil
}

// DetectImageType sniffs head and returns its MIME type when it is one of
// the accepted image formats.
func DetectImageType(head []byte) (string, error) {
	detected := mimetype.Detect(head)
	for _, allowed := range allowedImageTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", ErrUnsupportedImage
}

// MatchImageType sniffs head and returns its MIME type when it is the format
// ext names. Objects are served with the type implied by their key's
// extension, so the two must agree.
func MatchImageType(ext string, head []byte) (string, error) {
	contentType, err := DetectImageType(head)
	if err != nil {
		return "", err
	}
	if allowedImageTypes[strings.ToLower(ext)] != contentType {
		return "", ErrImageTypeMismatch
	}
	return contentType, nil
}

// NewImageKey returns a random object key keeping ext.
func NewImageKey(ext string) string {
	return uuid.NewString() + ext
}

// ValidateKey rejects keys containing path separators or traversal.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
