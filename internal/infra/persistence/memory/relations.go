package memory

import "gravecore/pkg/domain"

// The relationship operations load both records, apply the in-memory
// protocol from the domain package and persist the owning side. Inverse
// collections are derived on read, so a reassigned child disappears from
// its previous parent automatically.

func (tx *transaction) loadGrave(id string) (Grave, error) {
	g, ok := tx.state.graves[id]
	if !ok {
		return Grave{}, notFound(domain.EntityGrave, id)
	}
	return cloneGrave(decorateGrave(&tx.state, g)), nil
}

// AddBurial assigns the burial to the grave.
func (tx *transaction) AddBurial(graveID, burialID string) (Grave, error) {
	grave, err := tx.loadGrave(graveID)
	if err != nil {
		return Grave{}, err
	}
	burial, ok := tx.state.burials[burialID]
	if !ok {
		return Grave{}, notFound(domain.EntityBurial, burialID)
	}
	if burial.GraveID != nil && *burial.GraveID == graveID {
		return grave, nil
	}
	grave.AddBurial(&burial)
	if _, err := tx.UpdateBurial(burialID, func(b *Burial) error {
		b.GraveID = burial.GraveID
		return nil
	}); err != nil {
		return Grave{}, err
	}
	return tx.loadGrave(graveID)
}

// RemoveBurial detaches the burial if it currently rests in the grave.
func (tx *transaction) RemoveBurial(graveID, burialID string) (Grave, error) {
	grave, err := tx.loadGrave(graveID)
	if err != nil {
		return Grave{}, err
	}
	burial, ok := tx.state.burials[burialID]
	if !ok {
		return Grave{}, notFound(domain.EntityBurial, burialID)
	}
	previous := burial.GraveID
	grave.RemoveBurial(&burial)
	if burial.GraveID == previous {
		return grave, nil
	}
	if _, err := tx.UpdateBurial(burialID, func(b *Burial) error {
		b.GraveID = burial.GraveID
		return nil
	}); err != nil {
		return Grave{}, err
	}
	return tx.loadGrave(graveID)
}

// AddCover links the cover and the grave.
func (tx *transaction) AddCover(graveID, coverID string) (Grave, error) {
	grave, err := tx.loadGrave(graveID)
	if err != nil {
		return Grave{}, err
	}
	cover, ok := tx.state.covers[coverID]
	if !ok {
		return Grave{}, notFound(domain.EntityCover, coverID)
	}
	if containsString(cover.GraveIDs, graveID) {
		return grave, nil
	}
	cover = cloneCover(cover)
	grave.AddCover(&cover)
	if _, err := tx.UpdateCover(coverID, func(c *Cover) error {
		c.GraveIDs = cover.GraveIDs
		return nil
	}); err != nil {
		return Grave{}, err
	}
	return tx.loadGrave(graveID)
}

// RemoveCover unlinks the cover and the grave.
func (tx *transaction) RemoveCover(graveID, coverID string) (Grave, error) {
	grave, err := tx.loadGrave(graveID)
	if err != nil {
		return Grave{}, err
	}
	cover, ok := tx.state.covers[coverID]
	if !ok {
		return Grave{}, notFound(domain.EntityCover, coverID)
	}
	if !containsString(cover.GraveIDs, graveID) {
		return grave, nil
	}
	cover = cloneCover(cover)
	grave.RemoveCover(&cover)
	if _, err := tx.UpdateCover(coverID, func(c *Cover) error {
		c.GraveIDs = cover.GraveIDs
		return nil
	}); err != nil {
		return Grave{}, err
	}
	return tx.loadGrave(graveID)
}

func (tx *transaction) loadCemetery(id string) (Cemetery, error) {
	c, ok := tx.state.cemeteries[id]
	if !ok {
		return Cemetery{}, notFound(domain.EntityCemetery, id)
	}
	return cloneCemetery(decorateCemetery(&tx.state, c)), nil
}

// AddGrave places the grave in the cemetery, moving it out of any other.
func (tx *transaction) AddGrave(cemeteryID, graveID string) (Cemetery, error) {
	cemetery, err := tx.loadCemetery(cemeteryID)
	if err != nil {
		return Cemetery{}, err
	}
	grave, err := tx.loadGrave(graveID)
	if err != nil {
		return Cemetery{}, err
	}
	if grave.CemeteryID != nil && *grave.CemeteryID == cemeteryID {
		return cemetery, nil
	}
	cemetery.AddGrave(&grave)
	if _, err := tx.UpdateGrave(graveID, func(g *Grave) error {
		g.CemeteryID = grave.CemeteryID
		return nil
	}); err != nil {
		return Cemetery{}, err
	}
	return tx.loadCemetery(cemeteryID)
}

// RemoveGrave takes the grave out of the cemetery if it belongs to it.
func (tx *transaction) RemoveGrave(cemeteryID, graveID string) (Cemetery, error) {
	cemetery, err := tx.loadCemetery(cemeteryID)
	if err != nil {
		return Cemetery{}, err
	}
	grave, err := tx.loadGrave(graveID)
	if err != nil {
		return Cemetery{}, err
	}
	previous := grave.CemeteryID
	cemetery.RemoveGrave(&grave)
	if grave.CemeteryID == previous {
		return cemetery, nil
	}
	if _, err := tx.UpdateGrave(graveID, func(g *Grave) error {
		g.CemeteryID = grave.CemeteryID
		return nil
	}); err != nil {
		return Cemetery{}, err
	}
	return tx.loadCemetery(cemeteryID)
}
