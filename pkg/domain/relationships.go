package domain

// The methods below keep both ends of an association in step for records held
// in memory. The owning side of each pair is the record carrying the single
// reference (Burial.GraveID, Grave.CemeteryID) or, for the many-to-many pair,
// Cover.GraveIDs. Reassigning a child updates the child and the new parent
// only; the previous parent's in-memory collection is left as it was. The
// transactional store derives inverse collections from the owning side, so
// persisted state never carries such leftovers.

// AddBurial attaches b to the grave and points b back at it.
func (g *Grave) AddBurial(b *Burial) {
	if containsID(g.BurialIDs, b.ID) {
		return
	}
	g.BurialIDs = append(g.BurialIDs, b.ID)
	b.SetGrave(g)
}

// RemoveBurial detaches b from the grave. The burial's reference is cleared
// only while it still names this grave.
func (g *Grave) RemoveBurial(b *Burial) {
	ids, removed := removeID(g.BurialIDs, b.ID)
	if !removed {
		return
	}
	g.BurialIDs = ids
	if b.GraveID != nil && *b.GraveID == g.ID {
		b.GraveID = nil
	}
}

// SetGrave sets the owning reference; nil clears it.
func (b *Burial) SetGrave(g *Grave) {
	if g == nil {
		b.GraveID = nil
		return
	}
	id := g.ID
	b.GraveID = &id
}

// AddCover links c and the grave on both sides.
func (g *Grave) AddCover(c *Cover) {
	if containsID(g.CoverIDs, c.ID) {
		return
	}
	g.CoverIDs = append(g.CoverIDs, c.ID)
	c.AddGrave(g)
}

// RemoveCover unlinks c and the grave on both sides.
func (g *Grave) RemoveCover(c *Cover) {
	ids, removed := removeID(g.CoverIDs, c.ID)
	if !removed {
		return
	}
	g.CoverIDs = ids
	c.RemoveGrave(g)
}

// AddGrave links g and the cover on both sides.
func (c *Cover) AddGrave(g *Grave) {
	if containsID(c.GraveIDs, g.ID) {
		return
	}
	c.GraveIDs = append(c.GraveIDs, g.ID)
	g.AddCover(c)
}

// RemoveGrave unlinks g and the cover on both sides.
func (c *Cover) RemoveGrave(g *Grave) {
	ids, removed := removeID(c.GraveIDs, g.ID)
	if !removed {
		return
	}
	c.GraveIDs = ids
	g.RemoveCover(c)
}

// AddGrave places g in the cemetery and points g back at it.
func (c *Cemetery) AddGrave(g *Grave) {
	if containsID(c.GraveIDs, g.ID) {
		return
	}
	c.GraveIDs = append(c.GraveIDs, g.ID)
	g.SetCemetery(c)
}

// RemoveGrave takes g out of the cemetery, clearing its reference while it
// still names this cemetery.
func (c *Cemetery) RemoveGrave(g *Grave) {
	ids, removed := removeID(c.GraveIDs, g.ID)
	if !removed {
		return
	}
	c.GraveIDs = ids
	if g.CemeteryID != nil && *g.CemeteryID == c.ID {
		g.CemeteryID = nil
	}
}

// SetCemetery sets the owning reference; nil clears it.
func (g *Grave) SetCemetery(c *Cemetery) {
	if c == nil {
		g.CemeteryID = nil
		return
	}
	id := c.ID
	g.CemeteryID = &id
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) ([]string, bool) {
	for i, existing := range ids {
		if existing == id {
			out := make([]string, 0, len(ids)-1)
			out = append(out, ids[:i]...)
			return append(out, ids[i+1:]...), true
		}
	}
	return ids, false
}
