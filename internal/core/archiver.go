package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/almecha/GlucoseIoT/internal/blob"
)

// DefaultArchivePrefix is the key prefix under which snapshots are stored.
const DefaultArchivePrefix = "snapshots/"

// ArchiveOptions configures a SnapshotArchiver.
type ArchiveOptions struct {
	Prefix string
	// Retain keeps the newest N snapshots; zero keeps everything.
	Retain int
	Logger *zap.Logger
	Clock  func() time.Time
}

// SnapshotArchiver copies the committed catalog document to a blob store.
// The document is captured from a read snapshot, so uploads never hold the
// store lock.
type SnapshotArchiver struct {
	svc    *Service
	blobs  blob.Store
	prefix string
	retain int
	logger *zap.Logger
	now    func() time.Time
}

// NewSnapshotArchiver constructs an archiver writing to blobs.
func NewSnapshotArchiver(svc *Service, blobs blob.Store, opts ArchiveOptions) *SnapshotArchiver {
	a := &SnapshotArchiver{
		svc:    svc,
		blobs:  blobs,
		prefix: opts.Prefix,
		retain: opts.Retain,
		logger: opts.Logger,
		now:    opts.Clock,
	}
	if a.prefix == "" {
		a.prefix = DefaultArchivePrefix
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.Named("archive")
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	return a
}

// Archive uploads the current document and prunes old snapshots.
func (a *SnapshotArchiver) Archive(ctx context.Context) (blob.Info, error) {
	doc, err := a.svc.Document(ctx)
	if err != nil {
		return blob.Info{}, err
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := fmt.Sprintf("%scatalog-%s.json", a.prefix, a.now().UTC().Format("20060102T150405.000000000Z"))
	info, err := a.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"project":     doc.ProjectName,
			"last-update": doc.LastUpdate,
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	a.logger.Info("snapshot archived", zap.String("key", key), zap.Int64("size", info.Size), zap.String("driver", string(a.blobs.Driver())))
	if err := a.prune(ctx); err != nil {
		a.logger.Warn("snapshot pruning failed", zap.Error(err))
	}
	return info, nil
}

// Snapshots lists archived snapshots, oldest first.
func (a *SnapshotArchiver) Snapshots(ctx context.Context) ([]blob.Info, error) {
	return a.blobs.List(ctx, a.prefix)
}

func (a *SnapshotArchiver) prune(ctx context.Context) error {
	if a.retain <= 0 {
		return nil
	}
	infos, err := a.blobs.List(ctx, a.prefix)
	if err != nil {
		return err
	}
	for i := 0; i < len(infos)-a.retain; i++ {
		if _, err := a.blobs.Delete(ctx, infos[i].Key); err != nil {
			return fmt.Errorf("delete %s: %w", infos[i].Key, err)
		}
	}
	return nil
}
