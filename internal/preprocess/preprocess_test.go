package preprocess

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

func writeImage(t *testing.T, name string, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func openDims(t *testing.T, path string) (int, int) {
	t.Helper()
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("open processed image: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestNormalizeShrinkCapsLongestSide(t *testing.T) {
	path := writeImage(t, "wide.png", 400, 100)

	n := NewNormalizer(PolicyShrink, 200)
	out, err := n.Normalize(path)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	defer os.Remove(out)

	if out == path {
		t.Fatal("shrink should write a derived file")
	}
	w, h := openDims(t, out)
	if w != 200 {
		t.Errorf("width = %d, want 200", w)
	}
	if h != 50 {
		t.Errorf("height = %d, want 50 (aspect preserved)", h)
	}
}

func TestNormalizeShrinkLeavesSmallImagesUnscaled(t *testing.T) {
	path := writeImage(t, "small.png", 120, 80)

	n := NewNormalizer(PolicyShrink, 2000)
	out, err := n.Normalize(path)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	defer os.Remove(out)

	w, h := openDims(t, out)
	if w != 120 || h != 80 {
		t.Errorf("dimensions = %dx%d, want 120x80", w, h)
	}
}

func TestNormalizeUpscaleDoublesDimensions(t *testing.T) {
	path := writeImage(t, "small.png", 120, 80)

	n := NewNormalizer(PolicyUpscale, 2000)
	out, err := n.Normalize(path)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	defer os.Remove(out)

	w, h := openDims(t, out)
	if w != 240 || h != 160 {
		t.Errorf("dimensions = %dx%d, want 240x160", w, h)
	}
}

func TestNormalizeUndecodableFileIsDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.png")
	if err := os.WriteFile(path, []byte("not a raster image"), 0o644); err != nil {
		t.Fatal(err)
	}

	n := NewNormalizer(PolicyShrink, 2000)
	_, err := n.Normalize(path)
	if err == nil {
		t.Fatal("expected error for undecodable input")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("error type = %T, want *DecodeError", err)
	}
}

func TestNormalizeMissingFileIsDecodeError(t *testing.T) {
	n := NewNormalizer(PolicyShrink, 2000)
	_, err := n.Normalize(filepath.Join(t.TempDir(), "does-not-exist.png"))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("error type = %T, want *DecodeError", err)
	}
}

func TestDerivedTempPathIsCollisionFree(t *testing.T) {
	a := derivedTempPath("/tmp/x/photo.jpg")
	b := derivedTempPath("/tmp/x/photo.jpg")
	if a == b {
		t.Error("two derivations of the same source must not collide")
	}
	if !strings.HasPrefix(a, "/tmp/x/photo_processed_") || !strings.HasSuffix(a, ".jpg") {
		t.Errorf("unexpected shape: %s", a)
	}
}

func TestDerivedTempPathFallsBackToPNG(t *testing.T) {
	for _, src := range []string{"/tmp/photo.webp", "/tmp/photo.HEIC", "/tmp/photo"} {
		if got := derivedTempPath(src); !strings.HasSuffix(got, ".png") {
			t.Errorf("derivedTempPath(%q) = %q, want .png suffix", src, got)
		}
	}
}
