package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"gravecore/internal/infra/persistence/memory"
	"gravecore/pkg/domain"
)

func seedGrave(t *testing.T, store *Store) (domain.Grave, domain.Burial) {
	t.Helper()
	var grave domain.Grave
	var burial domain.Burial
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		grave, err = tx.CreateGrave(domain.Grave{
			Accommodation: "https://example.org/accommodations/1",
			Owner:         "https://example.org/people/1",
			Capacity:      2,
		})
		if err != nil {
			return err
		}
		burial, err = tx.CreateBurial(domain.Burial{Deceased: "https://example.org/people/3", GraveID: &grave.ID})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return grave, burial
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	grave, burial := seedGrave(t, store)
	if err := store.RecordAudit(context.Background(), domain.AuditEntry{
		Operation: "get_grave",
		Entity:    domain.EntityGrave,
		EntityID:  grave.ID,
		Status:    domain.AuditStatusSuccess,
	}); err != nil {
		t.Fatalf("record audit: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}
	_ = store.Close()

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	got, ok := reloaded.GetGrave(grave.ID)
	if !ok {
		t.Fatalf("expected grave after reload")
	}
	if len(got.BurialIDs) != 1 || got.BurialIDs[0] != burial.ID {
		t.Fatalf("expected derived burial list after reload, got %v", got.BurialIDs)
	}
	if n := len(reloaded.ChangeLog(domain.EntityBurial, burial.ID)); n != 1 {
		t.Fatalf("expected change log to be reloaded, got %d", n)
	}
	if n := len(reloaded.AuditTrail(domain.EntityGrave, grave.ID)); n != 1 {
		t.Fatalf("expected audit trail to be reloaded, got %d", n)
	}
}

func TestSQLiteStoreWritesEveryBucket(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	seedGrave(t, store)
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected 6 buckets, got %d", count)
	}
}

func TestSQLiteStoreFailedTransactionDoesNotPersist(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateGrave(domain.Grave{})
		return err
	}); err == nil {
		t.Fatalf("expected validation error")
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected nothing persisted, got %d buckets", count)
	}
}

func TestSQLiteStoreAuditWritesOnlyAuditBucket(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.RecordAudit(context.Background(), domain.AuditEntry{
		Operation: "get_grave",
		Entity:    domain.EntityGrave,
		EntityID:  "g1",
		Action:    domain.ActionRead,
		Status:    domain.AuditStatusSuccess,
	}); err != nil {
		t.Fatalf("record audit: %v", err)
	}
	var buckets []string
	rows, err := store.DB().Query(`SELECT bucket FROM state`)
	if err != nil {
		t.Fatalf("select buckets: %v", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var bucket string
		if err := rows.Scan(&bucket); err != nil {
			t.Fatalf("scan: %v", err)
		}
		buckets = append(buckets, bucket)
	}
	if len(buckets) != 1 || buckets[0] != memory.BucketAuditTrails {
		t.Fatalf("expected only the audit bucket written, got %v", buckets)
	}
}

func TestSQLiteStoreHooksWaitForPersist(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var notified int
	store.AddCommitHook(func(_ context.Context, entries []domain.ChangeLogEntry) {
		notified += len(entries)
	})
	if _, err := store.DB().Exec(`DROP TABLE state`); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateCover(domain.Cover{CoverType: "slab"})
		return err
	}); err == nil {
		t.Fatalf("expected persist error")
	}
	if notified != 0 {
		t.Fatalf("expected no hook call for an unpersisted commit, got %d entries", notified)
	}
}
