package memory

import (
	"fmt"
	"time"

	"gravecore/pkg/domain"
)

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindCemetery exposes cemetery lookup within the transaction scope.
func (tx *transaction) FindCemetery(id string) (Cemetery, bool) {
	return newTransactionView(&tx.state).FindCemetery(id)
}

// FindGrave exposes grave lookup within the transaction scope.
func (tx *transaction) FindGrave(id string) (Grave, bool) {
	return newTransactionView(&tx.state).FindGrave(id)
}

// FindBurial exposes burial lookup within the transaction scope.
func (tx *transaction) FindBurial(id string) (Burial, bool) {
	return newTransactionView(&tx.state).FindBurial(id)
}

// FindCover exposes cover lookup within the transaction scope.
func (tx *transaction) FindCover(id string) (Cover, bool) {
	return newTransactionView(&tx.state).FindCover(id)
}

func notFound(entity domain.EntityType, id string) error {
	return domain.NotFoundError{Entity: entity, ID: id}
}

func alreadyExists(entity domain.EntityType, id string) error {
	return domain.ConflictError{Entity: entity, ID: id, Reason: "already exists"}
}

// Cemeteries -----------------------------------------------------------------

// CreateCemetery stores a new cemetery record.
func (tx *transaction) CreateCemetery(c Cemetery) (Cemetery, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.cemeteries[c.ID]; exists {
		return Cemetery{}, alreadyExists(domain.EntityCemetery, c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	c.GraveIDs = nil
	if err := domain.Validate(c); err != nil {
		return Cemetery{}, err
	}
	tx.state.cemeteries[c.ID] = cloneCemetery(c)
	created := decorateCemetery(&tx.state, c)
	tx.recordChange(Change{Entity: domain.EntityCemetery, Action: domain.ActionCreate, After: cloneCemetery(created)})
	return cloneCemetery(created), nil
}

// UpdateCemetery mutates an existing cemetery.
func (tx *transaction) UpdateCemetery(id string, mutator func(*Cemetery) error) (Cemetery, error) {
	current, ok := tx.state.cemeteries[id]
	if !ok {
		return Cemetery{}, notFound(domain.EntityCemetery, id)
	}
	before := cloneCemetery(decorateCemetery(&tx.state, current))
	working := cloneCemetery(before)
	if err := mutator(&working); err != nil {
		return Cemetery{}, err
	}
	working.ID = id
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = tx.now
	working.GraveIDs = nil
	if err := domain.Validate(working); err != nil {
		return Cemetery{}, err
	}
	tx.state.cemeteries[id] = cloneCemetery(working)
	after := decorateCemetery(&tx.state, working)
	tx.recordChange(Change{Entity: domain.EntityCemetery, Action: domain.ActionUpdate, Before: before, After: cloneCemetery(after)})
	return cloneCemetery(after), nil
}

// DeleteCemetery removes a cemetery; its graves lose their cemetery reference.
func (tx *transaction) DeleteCemetery(id string) error {
	current, ok := tx.state.cemeteries[id]
	if !ok {
		return notFound(domain.EntityCemetery, id)
	}
	decorated := decorateCemetery(&tx.state, current)
	for _, graveID := range decorated.GraveIDs {
		if _, err := tx.UpdateGrave(graveID, func(g *Grave) error {
			g.CemeteryID = nil
			return nil
		}); err != nil {
			return fmt.Errorf("detach grave %q: %w", graveID, err)
		}
	}
	delete(tx.state.cemeteries, id)
	tx.recordChange(Change{Entity: domain.EntityCemetery, Action: domain.ActionDelete, Before: cloneCemetery(decorated)})
	return nil
}

// Graves ---------------------------------------------------------------------

func (tx *transaction) checkGraveRefs(g Grave) error {
	if g.CemeteryID != nil {
		if _, ok := tx.state.cemeteries[*g.CemeteryID]; !ok {
			return notFound(domain.EntityCemetery, *g.CemeteryID)
		}
	}
	return nil
}

func normalizeGrave(g *Grave) {
	if g.InterestedParties == nil {
		g.InterestedParties = []string{}
	}
	if g.Rulings == nil {
		g.Rulings = []string{}
	}
	g.BurialIDs = nil
	g.CoverIDs = nil
}

// CreateGrave stores a new grave record.
func (tx *transaction) CreateGrave(g Grave) (Grave, error) {
	if g.ID == "" {
		g.ID = tx.store.newID()
	}
	if _, exists := tx.state.graves[g.ID]; exists {
		return Grave{}, alreadyExists(domain.EntityGrave, g.ID)
	}
	normalizeGrave(&g)
	g.CreatedAt = tx.now
	g.UpdatedAt = tx.now
	if err := domain.Validate(g); err != nil {
		return Grave{}, err
	}
	if err := tx.checkGraveRefs(g); err != nil {
		return Grave{}, err
	}
	tx.state.graves[g.ID] = cloneGrave(g)
	created := decorateGrave(&tx.state, g)
	tx.recordChange(Change{Entity: domain.EntityGrave, Action: domain.ActionCreate, After: cloneGrave(created)})
	return cloneGrave(created), nil
}

// UpdateGrave mutates an existing grave. Changes to the derived burial and
// cover collections are ignored; use the relationship operations instead.
func (tx *transaction) UpdateGrave(id string, mutator func(*Grave) error) (Grave, error) {
	current, ok := tx.state.graves[id]
	if !ok {
		return Grave{}, notFound(domain.EntityGrave, id)
	}
	before := cloneGrave(decorateGrave(&tx.state, current))
	working := cloneGrave(before)
	if err := mutator(&working); err != nil {
		return Grave{}, err
	}
	normalizeGrave(&working)
	working.ID = id
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = tx.now
	if err := domain.Validate(working); err != nil {
		return Grave{}, err
	}
	if err := tx.checkGraveRefs(working); err != nil {
		return Grave{}, err
	}
	tx.state.graves[id] = cloneGrave(working)
	after := decorateGrave(&tx.state, working)
	tx.recordChange(Change{Entity: domain.EntityGrave, Action: domain.ActionUpdate, Before: before, After: cloneGrave(after)})
	return cloneGrave(after), nil
}

// DeleteGrave removes a grave. Burials resting in it are detached and covers
// stop referencing it.
func (tx *transaction) DeleteGrave(id string) error {
	current, ok := tx.state.graves[id]
	if !ok {
		return notFound(domain.EntityGrave, id)
	}
	decorated := decorateGrave(&tx.state, current)
	for _, burialID := range decorated.BurialIDs {
		if _, err := tx.UpdateBurial(burialID, func(b *Burial) error {
			b.GraveID = nil
			return nil
		}); err != nil {
			return fmt.Errorf("detach burial %q: %w", burialID, err)
		}
	}
	for _, coverID := range decorated.CoverIDs {
		if _, err := tx.UpdateCover(coverID, func(c *Cover) error {
			c.GraveIDs, _ = filterIDs(c.GraveIDs, func(v string) bool { return v != id })
			return nil
		}); err != nil {
			return fmt.Errorf("detach cover %q: %w", coverID, err)
		}
	}
	delete(tx.state.graves, id)
	tx.recordChange(Change{Entity: domain.EntityGrave, Action: domain.ActionDelete, Before: cloneGrave(decorated)})
	return nil
}

// Burials --------------------------------------------------------------------

func (tx *transaction) checkBurialRefs(b Burial) error {
	if b.GraveID != nil {
		if _, ok := tx.state.graves[*b.GraveID]; !ok {
			return notFound(domain.EntityGrave, *b.GraveID)
		}
	}
	return nil
}

// CreateBurial stores a new burial record.
func (tx *transaction) CreateBurial(b Burial) (Burial, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.burials[b.ID]; exists {
		return Burial{}, alreadyExists(domain.EntityBurial, b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	if err := domain.Validate(b); err != nil {
		return Burial{}, err
	}
	if err := tx.checkBurialRefs(b); err != nil {
		return Burial{}, err
	}
	tx.state.burials[b.ID] = cloneBurial(b)
	tx.recordChange(Change{Entity: domain.EntityBurial, Action: domain.ActionCreate, After: cloneBurial(b)})
	return cloneBurial(b), nil
}

// UpdateBurial mutates an existing burial. Pointing it at another grave moves
// it out of the previous one.
func (tx *transaction) UpdateBurial(id string, mutator func(*Burial) error) (Burial, error) {
	current, ok := tx.state.burials[id]
	if !ok {
		return Burial{}, notFound(domain.EntityBurial, id)
	}
	before := cloneBurial(current)
	working := cloneBurial(current)
	if err := mutator(&working); err != nil {
		return Burial{}, err
	}
	working.ID = id
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = tx.now
	if err := domain.Validate(working); err != nil {
		return Burial{}, err
	}
	if err := tx.checkBurialRefs(working); err != nil {
		return Burial{}, err
	}
	tx.state.burials[id] = cloneBurial(working)
	tx.recordChange(Change{Entity: domain.EntityBurial, Action: domain.ActionUpdate, Before: before, After: cloneBurial(working)})
	return cloneBurial(working), nil
}

// DeleteBurial removes a burial record.
func (tx *transaction) DeleteBurial(id string) error {
	current, ok := tx.state.burials[id]
	if !ok {
		return notFound(domain.EntityBurial, id)
	}
	delete(tx.state.burials, id)
	tx.recordChange(Change{Entity: domain.EntityBurial, Action: domain.ActionDelete, Before: cloneBurial(current)})
	return nil
}

// Covers ---------------------------------------------------------------------

func (tx *transaction) checkCoverRefs(c Cover) error {
	for _, graveID := range c.GraveIDs {
		if _, ok := tx.state.graves[graveID]; !ok {
			return notFound(domain.EntityGrave, graveID)
		}
	}
	return nil
}

// CreateCover stores a new cover record.
func (tx *transaction) CreateCover(c Cover) (Cover, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.covers[c.ID]; exists {
		return Cover{}, alreadyExists(domain.EntityCover, c.ID)
	}
	c.GraveIDs = dedupeStrings(c.GraveIDs)
	if c.GraveIDs == nil {
		c.GraveIDs = []string{}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	if err := domain.Validate(c); err != nil {
		return Cover{}, err
	}
	if err := tx.checkCoverRefs(c); err != nil {
		return Cover{}, err
	}
	tx.state.covers[c.ID] = cloneCover(c)
	tx.recordChange(Change{Entity: domain.EntityCover, Action: domain.ActionCreate, After: cloneCover(c)})
	return cloneCover(c), nil
}

// UpdateCover mutates an existing cover.
func (tx *transaction) UpdateCover(id string, mutator func(*Cover) error) (Cover, error) {
	current, ok := tx.state.covers[id]
	if !ok {
		return Cover{}, notFound(domain.EntityCover, id)
	}
	before := cloneCover(current)
	working := cloneCover(current)
	if err := mutator(&working); err != nil {
		return Cover{}, err
	}
	working.ID = id
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = tx.now
	working.GraveIDs = dedupeStrings(working.GraveIDs)
	if working.GraveIDs == nil {
		working.GraveIDs = []string{}
	}
	if err := domain.Validate(working); err != nil {
		return Cover{}, err
	}
	if err := tx.checkCoverRefs(working); err != nil {
		return Cover{}, err
	}
	tx.state.covers[id] = cloneCover(working)
	tx.recordChange(Change{Entity: domain.EntityCover, Action: domain.ActionUpdate, Before: before, After: cloneCover(working)})
	return cloneCover(working), nil
}

// DeleteCover removes a cover record.
func (tx *transaction) DeleteCover(id string) error {
	current, ok := tx.state.covers[id]
	if !ok {
		return notFound(domain.EntityCover, id)
	}
	delete(tx.state.covers, id)
	tx.recordChange(Change{Entity: domain.EntityCover, Action: domain.ActionDelete, Before: cloneCover(current)})
	return nil
}
