package media

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"pixelbot/internal/domain"
)

const (
	filePrefix = "generated_"
	fileExt    = ".png"
	tmpPrefix  = ".tmp-"
)

// filenamePattern matches names produced by NewFilename and nothing else, so
// fetches can never escape the storage directory.
var filenamePattern = regexp.MustCompile(`^generated_[0-9a-f]{32}\.png$`)

// NewFilename returns a fresh generated_<32 hex>.png name.
func NewFilename() string {
	id := uuid.New()
	return filePrefix + hex.EncodeToString(id[:]) + fileExt
}

// ValidFilename reports whether name looks like a generated image.
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(name)
}

// FileStore implements domain.ImageStore on a local directory.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

type FileStoreConfig struct {
	Dir    string
	Logger *slog.Logger
}

func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create image directory %s: %w", cfg.Dir, err)
	}
	return &FileStore{dir: cfg.Dir, logger: cfg.Logger}, nil
}

func (s *FileStore) Dir() string { return s.dir }

// Save validates that data decodes as an image and writes it as PNG under a
// new unique filename. PNG payloads are written byte for byte; other formats
// are re-encoded. The write goes through a temp file and a rename so readers
// never observe a partial image.
func (s *FileStore) Save(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	name := NewFilename()
	tmp, err := os.CreateTemp(s.dir, tmpPrefix+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if format == "png" {
		_, err = tmp.Write(data)
	} else {
		err = png.Encode(tmp, img)
	}
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("persist image: %w", err)
	}

	s.logger.Info("image saved", "file", name, "source_format", format, "bytes", len(data))
	return name, nil
}

// Open returns the stored image. Unknown or malformed names yield
// domain.ErrImageNotFound.
func (s *FileStore) Open(filename string) (io.ReadSeekCloser, domain.ImageInfo, error) {
	if !ValidFilename(filename) {
		return nil, domain.ImageInfo{}, domain.ErrImageNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ImageInfo{}, domain.ErrImageNotFound
	}
	if err != nil {
		return nil, domain.ImageInfo{}, fmt.Errorf("open image: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, domain.ImageInfo{}, fmt.Errorf("stat image: %w", err)
	}
	return f, domain.ImageInfo{Filename: filename, Size: st.Size(), ModTime: st.ModTime()}, nil
}

// Remove deletes a stored image. Removing a missing image is not an error.
func (s *FileStore) Remove(filename string) error {
	if !ValidFilename(filename) {
		return fmt.Errorf("invalid image filename %q", filename)
	}
	err := os.Remove(filepath.Join(s.dir, filename))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// Sweep deletes every generated image (and any leftover temp file) in the
// directory, regardless of what the registry knows. Individual failures are
// logged and skipped; the returned error is only set if listing fails.
func (s *FileStore) Sweep() (int, error) {
	var matches []string
	for _, pattern := range []string{filePrefix + "*" + fileExt, tmpPrefix + filePrefix + "*"} {
		m, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			return 0, fmt.Errorf("list images: %w", err)
		}
		matches = append(matches, m...)
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			s.logger.Error("cleanup failed", "file", filepath.Base(path), "err", err)
			continue
		}
		removed++
		s.logger.Info("cleaned up", "file", filepath.Base(path))
	}
	return removed, nil
}
