package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"pixelbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 200, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(FileStoreConfig{Dir: t.TempDir(), Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mustSave(t *testing.T, s *FileStore) string {
	t.Helper()
	name, err := s.Save(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatal(err)
	}
	return name
}

func TestNewFilename_UniqueAndValid(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		name := NewFilename()
		if !ValidFilename(name) {
			t.Fatalf("generated name %q must be valid", name)
		}
		if seen[name] {
			t.Fatalf("duplicate filename %q", name)
		}
		seen[name] = true
	}
}

func TestValidFilename_RejectsTraversal(t *testing.T) {
	for _, name := range []string{
		"../etc/passwd",
		"generated_../../x.png",
		"generated_abc.png",
		"app.py",
		"",
		"generated_0123456789abcdef0123456789abcdef.png/..",
	} {
		if ValidFilename(name) {
			t.Errorf("name %q should be rejected", name)
		}
	}
}

func TestFileStore_SaveOpenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := pngBytes(t)

	name, err := s.Save(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if !ValidFilename(name) {
		t.Errorf("invalid filename %q", name)
	}

	f, info, err := s.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("PNG payloads must be stored unchanged")
	}
	if info.Size != int64(len(data)) || info.Filename != name {
		t.Errorf("info = %+v", info)
	}
}

func TestFileStore_SaveReencodesToPNG(t *testing.T) {
	s := newTestStore(t)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}

	name, err := s.Save(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	f, _, err := s.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	_, format, err := image.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if format != "png" {
		t.Errorf("stored format = %q, want png", format)
	}
}

func TestFileStore_SaveRejectsGarbage(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Save(context.Background(), []byte("definitely not an image")); err == nil {
		t.Fatal("expected decode error")
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed saves must not leave files behind, found %d", len(entries))
	}
}

func TestFileStore_OpenMissing(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{NewFilename(), "../secret.png"} {
		if _, _, err := s.Open(name); !errors.Is(err, domain.ErrImageNotFound) {
			t.Errorf("Open(%q) = %v, want ErrImageNotFound", name, err)
		}
	}
}

func TestFileStore_RemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	name := mustSave(t, s)

	if err := s.Remove(name); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(name); err != nil {
		t.Errorf("second remove: %v", err)
	}
	if _, _, err := s.Open(name); !errors.Is(err, domain.ErrImageNotFound) {
		t.Errorf("Open after remove = %v", err)
	}
}

func TestFileStore_SweepRemovesOnlyGeneratedImages(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		mustSave(t, s)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "notes.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), tmpPrefix+"generated_partial.png-1"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 4 {
		t.Errorf("removed = %d, want 4", removed)
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "notes.png" {
		t.Errorf("remaining entries = %v", entries)
	}
}

func TestFileStore_SaveHonoursCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Save(ctx, pngBytes(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
