package report

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "car1.jpg", want: "car1.jpg"},
		{in: "../../etc/passwd", want: "_.._etc_passwd"},
		{in: "..hidden", want: "hidden"},
		{in: "Car #1 / Bank A", want: "Car _1 _ Bank A"},
		{in: "Café", want: "Cafe"},
		{in: "", want: "fallback"},
		{in: "///", want: "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeName(tt.in, "fallback"))
		})
	}
}

func TestUniqueNames(t *testing.T) {
	u := newUniqueNames()
	assert.Equal(t, "a.jpg", u.claim("a.jpg"))
	assert.Equal(t, "A-2.JPG", u.claim("A.JPG"))
	assert.Equal(t, "a-3.jpg", u.claim("a.jpg"))
	assert.Equal(t, "b", u.claim("b"))
	assert.Equal(t, "b-2", u.claim("b"))
}

func TestPhotoExporter_Export(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		storage.PhotoKey(auditA, "door.jpg"): []byte("door"),
		"custom/key.png":                     []byte("pit"),
	}}
	devices := []domain.Device{
		{
			AuditID:  auditA,
			DeviceID: "Car 1",
			Photos: []domain.Photo{
				{Filename: "door.jpg"},
				{Filename: "door.jpg", StorageKey: "custom/key.png"},
				{Filename: "missing.jpg"},
			},
		},
		{AuditID: auditB, DeviceID: "car 1", Photos: []domain.Photo{{Filename: "x.jpg", StorageKey: "custom/key.png"}}},
		{AuditID: auditB, DeviceID: "no photos"},
	}

	root := t.TempDir()
	n, err := NewPhotoExporter(store, 0, testLogger()).Export(context.Background(), root, devices)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	read := func(rel string) string {
		b, err := os.ReadFile(filepath.Join(root, PhotoDir, rel))
		require.NoError(t, err, rel)
		return string(b)
	}
	assert.Equal(t, "door", read("Car 1/door.jpg"))
	assert.Equal(t, "pit", read("Car 1/door-2.jpg"))
	assert.Equal(t, "pit", read("car 1-2/x.jpg"))

	_, err = os.Stat(filepath.Join(root, PhotoDir, "no photos"))
	assert.True(t, os.IsNotExist(err))
}

func TestPhotoExporter_StorageFailureIsFatal(t *testing.T) {
	store := &memStore{err: errors.New("connection reset")}
	devices := []domain.Device{{AuditID: auditA, DeviceID: "1", Photos: []domain.Photo{{Filename: "a.jpg"}}}}

	_, err := NewPhotoExporter(store, 0, testLogger()).Export(context.Background(), t.TempDir(), devices)
	require.Error(t, err)
	assert.Equal(t, domain.EPACKAGE, domain.ErrorCode(err))
}

func TestPhotoExporter_Downscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		for y := 0; y < 200; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	store := &memStore{objects: map[string][]byte{"p.png": buf.Bytes()}}
	devices := []domain.Device{{
		AuditID:  auditA,
		DeviceID: "1",
		Photos:   []domain.Photo{{Filename: "p.png", ContentType: "image/png", StorageKey: "p.png"}},
	}}

	root := t.TempDir()
	_, err := NewPhotoExporter(store, 100, testLogger()).Export(context.Background(), root, devices)
	require.NoError(t, err)

	out, err := imaging.Open(filepath.Join(root, PhotoDir, "1", "p.png"))
	require.NoError(t, err)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())
}

func TestPhotoExporter_UndecodableKeptAsIs(t *testing.T) {
	store := &memStore{objects: map[string][]byte{"k": []byte("not an image")}}
	devices := []domain.Device{{
		AuditID:  auditA,
		DeviceID: "1",
		Photos:   []domain.Photo{{Filename: "broken.jpg", ContentType: "image/jpeg", StorageKey: "k"}},
	}}

	root := t.TempDir()
	_, err := NewPhotoExporter(store, 100, testLogger()).Export(context.Background(), root, devices)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(root, PhotoDir, "1", "broken.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "not an image", string(b))
}
