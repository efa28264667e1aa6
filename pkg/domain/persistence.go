package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateCemetery(Cemetery) (Cemetery, error)
	UpdateCemetery(id string, mutator func(*Cemetery) error) (Cemetery, error)
	DeleteCemetery(id string) error
	CreateGrave(Grave) (Grave, error)
	UpdateGrave(id string, mutator func(*Grave) error) (Grave, error)
	DeleteGrave(id string) error
	CreateBurial(Burial) (Burial, error)
	UpdateBurial(id string, mutator func(*Burial) error) (Burial, error)
	DeleteBurial(id string) error
	CreateCover(Cover) (Cover, error)
	UpdateCover(id string, mutator func(*Cover) error) (Cover, error)
	DeleteCover(id string) error

	// AddBurial assigns the burial to the grave, detaching it from any
	// previous grave.
	AddBurial(graveID, burialID string) (Grave, error)
	// RemoveBurial detaches the burial when it belongs to the grave.
	RemoveBurial(graveID, burialID string) (Grave, error)
	AddCover(graveID, coverID string) (Grave, error)
	RemoveCover(graveID, coverID string) (Grave, error)
	AddGrave(cemeteryID, graveID string) (Cemetery, error)
	RemoveGrave(cemeteryID, graveID string) (Cemetery, error)

	FindCemetery(id string) (Cemetery, bool)
	FindGrave(id string) (Grave, bool)
	FindBurial(id string) (Burial, bool)
	FindCover(id string) (Cover, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// CommitHook observes the change log entries produced by a committed transaction.
type CommitHook func(ctx context.Context, entries []ChangeLogEntry)

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetCemetery(id string) (Cemetery, bool)
	ListCemeteries() []Cemetery
	GetGrave(id string) (Grave, bool)
	ListGraves() []Grave
	GetBurial(id string) (Burial, bool)
	ListBurials() []Burial
	GetCover(id string) (Cover, bool)
	ListCovers() []Cover

	ChangeLog(entity EntityType, id string) []ChangeLogEntry
	AuditTrail(entity EntityType, id string) []AuditEntry
	RecordAudit(ctx context.Context, entry AuditEntry) error
	AddCommitHook(hook CommitHook)
}
