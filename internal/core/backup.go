package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gravecore/internal/blob"
	"gravecore/internal/infra/persistence/memory"
	"gravecore/pkg/domain"
)

// BackupPrefix is the key prefix snapshots are written under.
const BackupPrefix = "snapshots/"

type snapshotter interface {
	ExportState() memory.Snapshot
}

// Backup writes the full store state as JSON to the blob store under
// snapshots/<UTC timestamp>.json.
func (s *Service) Backup(ctx context.Context, target blob.Store) (blob.Info, error) {
	var info blob.Info
	_, err := s.run(ctx, operation{name: "backup"}, func(ctx context.Context) (string, domain.Result, error) {
		if target == nil {
			return "", domain.Result{}, errors.New("backup: no blob store")
		}
		src, ok := s.store.(snapshotter)
		if !ok {
			return "", domain.Result{}, fmt.Errorf("backup: store %T cannot export state", s.store)
		}
		payload, err := json.MarshalIndent(src.ExportState(), "", "  ")
		if err != nil {
			return "", domain.Result{}, fmt.Errorf("backup: encode snapshot: %w", err)
		}
		key := BackupPrefix + s.now().UTC().Format("20060102T150405.000000000Z") + ".json"
		info, err = target.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: "application/json"})
		if err != nil {
			return "", domain.Result{}, fmt.Errorf("backup: write %s: %w", key, err)
		}
		return key, domain.Result{}, nil
	})
	return info, err
}

// ListBackups returns the snapshots stored in target, oldest first.
func (s *Service) ListBackups(ctx context.Context, target blob.Store) ([]blob.Info, error) {
	if target == nil {
		return nil, errors.New("backup: no blob store")
	}
	return target.List(ctx, BackupPrefix)
}
