// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gravecore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Cemetery aliases domain.Cemetery for in-memory persistence operations.
	Cemetery = domain.Cemetery
	// Grave aliases domain.Grave.
	Grave = domain.Grave
	// Burial aliases domain.Burial.
	Burial = domain.Burial
	// Cover aliases domain.Cover.
	Cover = domain.Cover
	// ChangeLogEntry aliases domain.ChangeLogEntry.
	ChangeLogEntry = domain.ChangeLogEntry
	// AuditEntry aliases domain.AuditEntry.
	AuditEntry = domain.AuditEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	cemeteries map[string]Cemetery
	graves     map[string]Grave
	burials    map[string]Burial
	covers     map[string]Cover
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Cemeteries  map[string]Cemetery `json:"cemeteries"`
	Graves      map[string]Grave    `json:"graves"`
	Burials     map[string]Burial   `json:"burials"`
	Covers      map[string]Cover    `json:"covers"`
	ChangeLogs  []ChangeLogEntry    `json:"change_logs"`
	AuditTrails []AuditEntry        `json:"audit_trails"`
}

func newMemoryState() memoryState {
	return memoryState{
		cemeteries: make(map[string]Cemetery),
		graves:     make(map[string]Grave),
		burials:    make(map[string]Burial),
		covers:     make(map[string]Cover),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.cemeteries {
		cloned.cemeteries[k] = cloneCemetery(v)
	}
	for k, v := range s.graves {
		cloned.graves[k] = cloneGrave(v)
	}
	for k, v := range s.burials {
		cloned.burials[k] = cloneBurial(v)
	}
	for k, v := range s.covers {
		cloned.covers[k] = cloneCover(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState, changeLogs []ChangeLogEntry, audits []AuditEntry) Snapshot {
	cloned := state.clone()
	s := Snapshot{
		Cemeteries:  make(map[string]Cemetery, len(cloned.cemeteries)),
		Graves:      cloned.graves,
		Burials:     cloned.burials,
		Covers:      cloned.covers,
		ChangeLogs:  append([]ChangeLogEntry{}, changeLogs...),
		AuditTrails: append([]AuditEntry{}, audits...),
	}
	for k, v := range cloned.cemeteries {
		s.Cemeteries[k] = v
	}
	for k, v := range s.Graves {
		s.Graves[k] = decorateGrave(&cloned, v)
	}
	for k, v := range s.Cemeteries {
		s.Cemeteries[k] = decorateCemetery(&cloned, v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Cemeteries {
		v.GraveIDs = nil
		state.cemeteries[k] = cloneCemetery(v)
	}
	for k, v := range s.Graves {
		v.BurialIDs = nil
		v.CoverIDs = nil
		state.graves[k] = cloneGrave(v)
	}
	for k, v := range s.Burials {
		state.burials[k] = cloneBurial(v)
	}
	for k, v := range s.Covers {
		state.covers[k] = cloneCover(v)
	}
	return state
}

// migrateSnapshot repairs snapshots written by older versions or by hand:
// dangling references are dropped and inverse collections are discarded so
// they are derived again from the owning side.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Cemeteries == nil {
		snapshot.Cemeteries = map[string]Cemetery{}
	}
	if snapshot.Graves == nil {
		snapshot.Graves = map[string]Grave{}
	}
	if snapshot.Burials == nil {
		snapshot.Burials = map[string]Burial{}
	}
	if snapshot.Covers == nil {
		snapshot.Covers = map[string]Cover{}
	}

	graveExists := func(id string) bool {
		_, ok := snapshot.Graves[id]
		return ok
	}

	for id, grave := range snapshot.Graves {
		if grave.CemeteryID != nil {
			if _, ok := snapshot.Cemeteries[*grave.CemeteryID]; !ok {
				grave.CemeteryID = nil
			}
		}
		if grave.Capacity < 1 {
			grave.Capacity = 1
		}
		if grave.InterestedParties == nil {
			grave.InterestedParties = []string{}
		}
		if grave.Rulings == nil {
			grave.Rulings = []string{}
		}
		grave.BurialIDs = nil
		grave.CoverIDs = nil
		snapshot.Graves[id] = grave
	}

	for id, burial := range snapshot.Burials {
		if burial.GraveID != nil && !graveExists(*burial.GraveID) {
			burial.GraveID = nil
		}
		snapshot.Burials[id] = burial
	}

	for id, cover := range snapshot.Covers {
		filtered, _ := filterIDs(dedupeStrings(cover.GraveIDs), graveExists)
		if filtered == nil {
			filtered = []string{}
		}
		cover.GraveIDs = filtered
		snapshot.Covers[id] = cover
	}

	for id, cemetery := range snapshot.Cemeteries {
		cemetery.GraveIDs = nil
		snapshot.Cemeteries[id] = cemetery
	}
	return snapshot
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

func cloneCemetery(c Cemetery) Cemetery {
	cp := c
	cp.Reference = cloneStringPtr(c.Reference)
	cp.GraveIDs = cloneStrings(c.GraveIDs)
	return cp
}

func cloneGrave(g Grave) Grave {
	cp := g
	cp.CemeteryID = cloneStringPtr(g.CemeteryID)
	cp.Reference = cloneStringPtr(g.Reference)
	cp.GraveType = cloneStringPtr(g.GraveType)
	cp.RightsExpireAt = cloneTimePtr(g.RightsExpireAt)
	cp.InterestedParties = cloneStrings(g.InterestedParties)
	cp.Rulings = cloneStrings(g.Rulings)
	cp.BurialIDs = cloneStrings(g.BurialIDs)
	cp.CoverIDs = cloneStrings(g.CoverIDs)
	return cp
}

func cloneBurial(b Burial) Burial {
	cp := b
	cp.GraveID = cloneStringPtr(b.GraveID)
	cp.Reference = cloneStringPtr(b.Reference)
	cp.BurialType = cloneStringPtr(b.BurialType)
	cp.BuriedAt = cloneTimePtr(b.BuriedAt)
	return cp
}

func cloneCover(c Cover) Cover {
	cp := c
	cp.Reference = cloneStringPtr(c.Reference)
	cp.Description = cloneStringPtr(c.Description)
	cp.GraveIDs = cloneStrings(c.GraveIDs)
	return cp
}

func cemeteryGraveIDs(state *memoryState, cemeteryID string) []string {
	ids := []string{}
	for _, grave := range state.graves {
		if grave.CemeteryID != nil && *grave.CemeteryID == cemeteryID {
			ids = append(ids, grave.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func decorateCemetery(state *memoryState, cemetery Cemetery) Cemetery {
	cemetery.GraveIDs = cemeteryGraveIDs(state, cemetery.ID)
	return cemetery
}

func graveBurialIDs(state *memoryState, graveID string) []string {
	ids := []string{}
	for _, burial := range state.burials {
		if burial.GraveID != nil && *burial.GraveID == graveID {
			ids = append(ids, burial.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func graveCoverIDs(state *memoryState, graveID string) []string {
	ids := []string{}
	for _, cover := range state.covers {
		if containsString(cover.GraveIDs, graveID) {
			ids = append(ids, cover.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func decorateGrave(state *memoryState, grave Grave) Grave {
	grave.BurialIDs = graveBurialIDs(state, grave.ID)
	grave.CoverIDs = graveCoverIDs(state, grave.ID)
	return grave
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hooks  []domain.CommitHook

	// append-only history, kept out of the cloned transactional state
	changeLogs []ChangeLogEntry
	audits     []AuditEntry
	versions   map[string]int
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:    newMemoryState(),
		engine:   engine,
		nowFn:    func() time.Time { return time.Now().UTC() },
		versions: make(map[string]int),
	}
}

func (s *Store) newID() string {
	return domain.NewID()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state, s.changeLogs, s.audits)
}

// ExportAuditTrails returns only the audit bucket of the snapshot.
func (s *Store) ExportAuditTrails() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{AuditTrails: append([]AuditEntry{}, s.audits...)}
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.changeLogs = append([]ChangeLogEntry(nil), snapshot.ChangeLogs...)
	s.audits = append([]AuditEntry(nil), snapshot.AuditTrails...)
	s.versions = make(map[string]int)
	for _, entry := range s.changeLogs {
		key := versionKey(entry.Entity, entry.EntityID)
		if entry.Version > s.versions[key] {
			s.versions[key] = entry.Version
		}
	}
}

func versionKey(entity domain.EntityType, id string) string {
	return string(entity) + "/" + id
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider; nil restores the wall clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

// AddCommitHook registers a callback invoked after every commit that produced
// change log entries. Hooks run outside the store lock.
func (s *Store) AddCommitHook(hook domain.CommitHook) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListCemeteries returns all cemeteries within the snapshot.
func (v transactionView) ListCemeteries() []Cemetery {
	out := make([]Cemetery, 0, len(v.state.cemeteries))
	for _, c := range v.state.cemeteries {
		out = append(out, cloneCemetery(decorateCemetery(v.state, c)))
	}
	sortByID(out, func(c Cemetery) string { return c.ID })
	return out
}

// ListGraves returns all graves within the snapshot.
func (v transactionView) ListGraves() []Grave {
	out := make([]Grave, 0, len(v.state.graves))
	for _, g := range v.state.graves {
		out = append(out, cloneGrave(decorateGrave(v.state, g)))
	}
	sortByID(out, func(g Grave) string { return g.ID })
	return out
}

// ListBurials returns all burials within the snapshot.
func (v transactionView) ListBurials() []Burial {
	out := make([]Burial, 0, len(v.state.burials))
	for _, b := range v.state.burials {
		out = append(out, cloneBurial(b))
	}
	sortByID(out, func(b Burial) string { return b.ID })
	return out
}

// ListCovers returns all covers within the snapshot.
func (v transactionView) ListCovers() []Cover {
	out := make([]Cover, 0, len(v.state.covers))
	for _, c := range v.state.covers {
		out = append(out, cloneCover(c))
	}
	sortByID(out, func(c Cover) string { return c.ID })
	return out
}

// FindCemetery retrieves a cemetery by ID.
func (v transactionView) FindCemetery(id string) (Cemetery, bool) {
	c, ok := v.state.cemeteries[id]
	if !ok {
		return Cemetery{}, false
	}
	return cloneCemetery(decorateCemetery(v.state, c)), true
}

// FindGrave retrieves a grave by ID.
func (v transactionView) FindGrave(id string) (Grave, bool) {
	g, ok := v.state.graves[id]
	if !ok {
		return Grave{}, false
	}
	return cloneGrave(decorateGrave(v.state, g)), true
}

// FindBurial retrieves a burial by ID.
func (v transactionView) FindBurial(id string) (Burial, bool) {
	b, ok := v.state.burials[id]
	if !ok {
		return Burial{}, false
	}
	return cloneBurial(b), true
}

// FindCover retrieves a cover by ID.
func (v transactionView) FindCover(id string) (Cover, bool) {
	c, ok := v.state.covers[id]
	if !ok {
		return Cover{}, false
	}
	return cloneCover(c), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	result, notify, err := s.Commit(ctx, fn)
	if err != nil {
		return result, err
	}
	notify()
	return result, nil
}

// Commit applies fn like RunInTransaction but leaves the commit hooks to the
// caller: notify runs them and must be called at most once. Durable backends
// call it only after their own write succeeded.
func (s *Store) Commit(ctx context.Context, fn func(tx Transaction) error) (Result, func(), error) {
	result, entries, hooks, err := s.commit(ctx, fn)
	if err != nil {
		return result, func() {}, err
	}
	notify := func() {
		for _, hook := range hooks {
			hook(ctx, cloneEntries(entries))
		}
	}
	return result, notify, nil
}

func (s *Store) commit(ctx context.Context, fn func(tx Transaction) error) (Result, []ChangeLogEntry, []domain.CommitHook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, nil, nil, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, nil, nil, err
		}
		result = res
		if res.HasBlocking() {
			return res, nil, nil, domain.RuleViolationError{Result: res}
		}
	}

	entries, err := tx.changeLogEntries(domain.ActorFromContext(ctx))
	if err != nil {
		return Result{}, nil, nil, err
	}
	s.changeLogs = append(s.changeLogs, entries...)
	for _, entry := range entries {
		s.versions[versionKey(entry.Entity, entry.EntityID)] = entry.Version
	}
	s.state = tx.state
	if len(entries) == 0 {
		return result, nil, nil, nil
	}
	return result, entries, append([]domain.CommitHook(nil), s.hooks...), nil
}

// changeLogEntries converts the recorded changes into log entries. Updates
// that leave every versioned field untouched are skipped.
func (tx *transaction) changeLogEntries(actor string) ([]ChangeLogEntry, error) {
	versions := make(map[string]int)
	var entries []ChangeLogEntry
	for _, change := range tx.changes {
		before, _ := change.Before.(domain.Record)
		after, _ := change.After.(domain.Record)
		var entityID string
		switch {
		case after != nil:
			entityID = after.Identifier()
		case before != nil:
			entityID = before.Identifier()
		default:
			continue
		}
		fields, err := domain.DiffVersioned(before, after)
		if err != nil {
			return nil, fmt.Errorf("diff %s %q: %w", change.Entity, entityID, err)
		}
		if change.Action == domain.ActionUpdate && len(fields) == 0 {
			continue
		}
		key := versionKey(change.Entity, entityID)
		if _, seen := versions[key]; !seen {
			versions[key] = tx.store.versions[key]
		}
		versions[key]++
		entries = append(entries, ChangeLogEntry{
			ID:       tx.store.newID(),
			Entity:   change.Entity,
			EntityID: entityID,
			Version:  versions[key],
			Action:   change.Action,
			Actor:    actor,
			LoggedAt: tx.now,
			Changes:  fields,
		})
	}
	return entries, nil
}

func cloneEntries(entries []ChangeLogEntry) []ChangeLogEntry {
	return append([]ChangeLogEntry(nil), entries...)
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// ChangeLog returns the change log of one record, oldest first.
func (s *Store) ChangeLog(entity domain.EntityType, id string) []ChangeLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []ChangeLogEntry{}
	for _, entry := range s.changeLogs {
		if entry.Entity == entity && entry.EntityID == id {
			out = append(out, entry)
		}
	}
	return out
}

// AuditTrail returns the audit entries of one record, oldest first.
func (s *Store) AuditTrail(entity domain.EntityType, id string) []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []AuditEntry{}
	for _, entry := range s.audits {
		if entry.Entity == entity && entry.EntityID == id {
			out = append(out, entry)
		}
	}
	return out
}

// RecordAudit appends an audit entry, assigning an identifier when missing.
func (s *Store) RecordAudit(_ context.Context, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = s.newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.nowFn()
	}
	s.audits = append(s.audits, entry)
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetCemetery retrieves a cemetery by ID from committed state.
func (s *Store) GetCemetery(id string) (Cemetery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindCemetery(id)
}

// ListCemeteries returns all cemeteries from committed state.
func (s *Store) ListCemeteries() []Cemetery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListCemeteries()
}

// GetGrave retrieves a grave by ID from committed state.
func (s *Store) GetGrave(id string) (Grave, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindGrave(id)
}

// ListGraves returns all graves from committed state.
func (s *Store) ListGraves() []Grave {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListGraves()
}

// GetBurial retrieves a burial by ID from committed state.
func (s *Store) GetBurial(id string) (Burial, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindBurial(id)
}

// ListBurials returns all burials from committed state.
func (s *Store) ListBurials() []Burial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListBurials()
}

// GetCover retrieves a cover by ID from committed state.
func (s *Store) GetCover(id string) (Cover, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindCover(id)
}

// ListCovers returns all covers from committed state.
func (s *Store) ListCovers() []Cover {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListCovers()
}

func sortByID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func filterIDs(ids []string, keep func(string) bool) ([]string, bool) {
	if len(ids) == 0 {
		return ids, false
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out, len(out) != len(ids)
}
