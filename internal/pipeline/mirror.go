package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/snapshot"
)

// multipartThreshold is the file size above which uploads switch to the
// multipart path.
const multipartThreshold int64 = 64 * 1024 * 1024

const multipartPartSize int64 = 16 * 1024 * 1024

// MirrorStore is the local side of the snapshot mirror.
type MirrorStore interface {
	Has(date time.Time) (bool, error)
	WriteRaw(date time.Time, payload []byte) error
	Path(date time.Time) string
}

// Mirror keeps object storage and the local snapshot directory in step:
// Hydrate pulls dates missing locally, Push uploads freshly written
// snapshots and UploadRun publishes a run directory's artifacts.
type Mirror struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	store  MirrorStore
	prefix string
	logger *slog.Logger
}

// NewMirror creates a Mirror. Snapshots live under prefix in the bucket.
func NewMirror(reader domain.BlobReader, writer domain.BlobWriter, store MirrorStore, prefix string, logger *slog.Logger) *Mirror {
	return &Mirror{
		reader: reader,
		writer: writer,
		store:  store,
		prefix: prefix,
		logger: logger.With(slog.String("component", "mirror")),
	}
}

// SnapshotKey is the object key of the snapshot for date.
func (m *Mirror) SnapshotKey(date time.Time) string {
	return m.prefix + snapshot.FileName(date)
}

// Hydrate downloads every mirrored snapshot inside rng that has no valid
// local copy. Each download is validated before it is written; a bad object
// is logged and skipped so the date stays in the fetch backlog.
func (m *Mirror) Hydrate(ctx context.Context, rng domain.DateRange) (int, error) {
	blobs, err := m.reader.List(ctx, m.prefix)
	if err != nil {
		return 0, fmt.Errorf("listing mirrored snapshots under %s: %w", m.prefix, err)
	}

	restored := 0
	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			return restored, err
		}

		date, ok := snapshot.ParseFileName(path.Base(blob.Path))
		if !ok || !rng.Contains(date) {
			continue
		}
		has, err := m.store.Has(date)
		if err != nil {
			return restored, fmt.Errorf("checking local snapshot %s: %w", domain.FormatDate(date), err)
		}
		if has {
			continue
		}

		if err := m.restore(ctx, blob.Path, date); err != nil {
			m.logger.Warn("skipping mirrored snapshot",
				slog.String("key", blob.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		restored++
	}

	m.logger.Info("hydrate complete", slog.String("range", rng.String()), slog.Int("restored", restored))
	return restored, nil
}

func (m *Mirror) restore(ctx context.Context, key string, date time.Time) error {
	rc, err := m.reader.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return m.store.WriteRaw(date, payload)
}

// Push uploads the local snapshot for date.
func (m *Mirror) Push(ctx context.Context, date time.Time) error {
	key := m.SnapshotKey(date)
	if err := m.uploadFile(ctx, m.store.Path(date), key); err != nil {
		return fmt.Errorf("pushing snapshot %s: %w", domain.FormatDate(date), err)
	}
	m.logger.Debug("snapshot pushed", slog.String("key", key))
	return nil
}

// Forget deletes the mirrored snapshot for date when the writer supports
// deletion. It is used when a local snapshot is withdrawn so a later
// Hydrate cannot bring it back.
func (m *Mirror) Forget(ctx context.Context, date time.Time) error {
	d, ok := m.writer.(domain.BlobDeleter)
	if !ok {
		return nil
	}
	key := m.SnapshotKey(date)
	if err := d.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting mirrored snapshot %s: %w", domain.FormatDate(date), err)
	}
	m.logger.Info("mirrored snapshot deleted", slog.String("key", key))
	return nil
}

// UploadRun uploads every regular file in dir to runs/<name>/.
func (m *Mirror) UploadRun(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading run directory %s: %w", dir, err)
	}

	prefix := path.Join("runs", filepath.Base(dir))
	uploaded := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		key := path.Join(prefix, e.Name())
		if err := m.uploadFile(ctx, filepath.Join(dir, e.Name()), key); err != nil {
			return uploaded, fmt.Errorf("uploading run artifact %s: %w", e.Name(), err)
		}
		uploaded++
	}

	m.logger.Info("run uploaded", slog.String("prefix", prefix), slog.Int("files", uploaded))
	return uploaded, nil
}

func (m *Mirror) uploadFile(ctx context.Context, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() > multipartThreshold {
		return m.writer.PutMultipart(ctx, key, f, multipartPartSize)
	}
	return m.writer.Put(ctx, key, f, contentType(src))
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
