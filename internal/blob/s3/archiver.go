package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"chartsignal/internal/domain"
)

// multipartThreshold is the object size above which the archiver switches to
// multipart upload.
const multipartThreshold = int64(16 * 1024 * 1024)

// ChartArchive implements domain.ChartArchiver on top of a BlobWriter. Keys
// are laid out by detection date so a day's charts can be listed with a single
// prefix scan: <prefix>/2025/06/01/<messageID>_chart.png.
type ChartArchive struct {
	writer domain.BlobWriter
	prefix string
}

// NewChartArchive creates an archiver writing under the given key prefix.
func NewChartArchive(w domain.BlobWriter, prefix string) *ChartArchive {
	if prefix == "" {
		prefix = "charts"
	}
	return &ChartArchive{writer: w, prefix: strings.Trim(prefix, "/")}
}

// ArchiveChart uploads the chart image and returns the object key.
func (a *ChartArchive) ArchiveChart(ctx context.Context, sig *domain.TradeSignal, img domain.ImageRef) (string, error) {
	key := a.key(sig, img)

	var err error
	if int64(len(img.Data)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(img.Data), 0)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(img.Data), contentType(img))
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive chart for signal %s: %w", sig.ID, err)
	}
	return key, nil
}

func (a *ChartArchive) key(sig *domain.TradeSignal, img domain.ImageRef) string {
	day := sig.DetectedAt
	if day.IsZero() {
		day = time.Now()
	}

	name := sanitizeName(img.Name)
	if name == "" {
		name = "chart" + extensionFor(img.ContentType)
	}
	return path.Join(a.prefix, day.UTC().Format("2006/01/02"),
		fmt.Sprintf("%s_%s", sig.MessageID, name))
}

// sanitizeName strips path separators so attachment filenames cannot escape
// the archive prefix.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return strings.TrimSpace(name)
}

func contentType(img domain.ImageRef) string {
	if img.ContentType != "" {
		return img.ContentType
	}
	return "application/octet-stream"
}

func extensionFor(ct string) string {
	exts, err := mime.ExtensionsByType(ct)
	if err != nil || len(exts) == 0 {
		return ".png"
	}
	return exts[0]
}

// Compile-time interface checks.
var (
	_ domain.ChartArchiver = (*ChartArchive)(nil)
	_ domain.BlobWriter    = (*Writer)(nil)
)
