package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/storage"
	"github.com/disintegration/imaging"
)

// PhotoDir is the archive directory holding one subdirectory per device.
const PhotoDir = "SITE PICTURES"

// PhotoStore is the read side of photo storage.
type PhotoStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
}

// PhotoExporter copies each device's photos out of storage into a staging tree.
type PhotoExporter struct {
	Store PhotoStore

	// MaxDimension bounds the longest edge of re-encoded photos.
	// Zero exports the stored bytes unchanged.
	MaxDimension int

	logger *slog.Logger
}

// NewPhotoExporter creates a PhotoExporter.
func NewPhotoExporter(store PhotoStore, maxDimension int, logger *slog.Logger) *PhotoExporter {
	return &PhotoExporter{Store: store, MaxDimension: maxDimension, logger: logger}
}

// Export writes photos to root/SITE PICTURES/<device>/<photo> and returns
// how many were written. Directory and file names are sanitized and made
// unique, so hostile or duplicate source names cannot collide or escape root.
// Photos missing from storage are skipped; any other failure is fatal.
func (e *PhotoExporter) Export(ctx context.Context, root string, devices []domain.Device) (int, error) {
	const op = "report.ExportPhotos"

	base := filepath.Join(root, PhotoDir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return 0, domain.Wrap(err, domain.EPACKAGE, op, "create photo directory")
	}

	dirNames := newUniqueNames()
	written := 0
	for i := range devices {
		d := &devices[i]
		if len(d.Photos) == 0 {
			continue
		}

		dirName := dirNames.claim(SafeName(d.Label(), "device"))
		deviceDir := filepath.Join(base, dirName)
		if err := os.MkdirAll(deviceDir, 0o755); err != nil {
			return written, domain.Wrap(err, domain.EPACKAGE, op, fmt.Sprintf("create directory %s", dirName))
		}

		fileNames := newUniqueNames()
		for j := range d.Photos {
			p := &d.Photos[j]
			key := p.StorageKey
			if key == "" {
				key = storage.PhotoKey(d.AuditID, p.Filename)
			}

			data, err := e.fetch(ctx, key)
			if storage.IsNotFound(err) {
				e.logger.Warn("photo missing from storage", "audit_id", d.AuditID, "key", key)
				continue
			}
			if err != nil {
				return written, domain.Wrap(err, domain.EPACKAGE, op, fmt.Sprintf("read photo %s", key))
			}

			name := fileNames.claim(photoFilename(p))
			target := filepath.Join(deviceDir, name)
			if err := e.writePhoto(target, p.ContentType, data); err != nil {
				return written, domain.Wrap(err, domain.EPACKAGE, op, fmt.Sprintf("write photo %s", name))
			}
			written++
		}
	}

	e.logger.Debug("photos exported", "count", written, "devices", dirNames.len())
	return written, nil
}

func (e *PhotoExporter) fetch(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := e.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// writePhoto stores data at target, downscaling when the format allows it.
// Images the decoder cannot read are written unchanged.
func (e *PhotoExporter) writePhoto(target, contentType string, data []byte) error {
	if e.MaxDimension > 0 && storage.IsResizable(storage.DetectContentType(contentType, target, nil)) {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err == nil {
			b := img.Bounds()
			if b.Dx() > e.MaxDimension || b.Dy() > e.MaxDimension {
				img = imaging.Fit(img, e.MaxDimension, e.MaxDimension, imaging.Lanczos)
			}
			if err := imaging.Save(img, target, imaging.JPEGQuality(85)); err == nil {
				return nil
			}
		} else {
			e.logger.Debug("photo not decodable, exporting original", "file", filepath.Base(target), "error", err)
		}
	}
	return os.WriteFile(target, data, 0o644)
}

// photoFilename returns a safe file name with an extension the content
// type agrees with.
func photoFilename(p *domain.Photo) string {
	name := SafeName(filepath.Base(strings.ReplaceAll(p.Filename, "\\", "/")), "photo")
	if filepath.Ext(name) == "" {
		name += storage.ExtensionForContentType(p.ContentType)
	}
	return name
}

// SafeName reduces s to letters, digits, spaces, dots, dashes and
// underscores. Leading dots are removed so names cannot be hidden or
// relative. An empty result becomes fallback.
func SafeName(s, fallback string) string {
	s = SanitizeASCII(s)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isASCIILetter(c), c >= '0' && c <= '9', c == ' ', c == '.', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(strings.TrimSpace(b.String()), ".")
	out = strings.TrimSpace(out)
	if len(out) > 100 {
		out = out[:100]
	}
	if out == "" || strings.Trim(out, "_") == "" {
		return fallback
	}
	return out
}

// uniqueNames hands out names that differ case-insensitively by appending
// "-2", "-3" and so on before the extension.
type uniqueNames struct {
	seen map[string]bool
}

func newUniqueNames() *uniqueNames {
	return &uniqueNames{seen: make(map[string]bool)}
}

func (u *uniqueNames) claim(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; u.seen[strings.ToLower(candidate)]; n++ {
		candidate = stem + "-" + strconv.Itoa(n) + ext
	}
	u.seen[strings.ToLower(candidate)] = true
	return candidate
}

func (u *uniqueNames) len() int {
	return len(u.seen)
}
