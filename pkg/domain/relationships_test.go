package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGraveAddBurialSetsBackReference(t *testing.T) {
	grave := NewGrave()
	burial := NewBurial()

	grave.AddBurial(burial)

	if !containsID(grave.BurialIDs, burial.ID) {
		t.Fatalf("expected grave to list burial %s", burial.ID)
	}
	if burial.GraveID == nil || *burial.GraveID != grave.ID {
		t.Fatalf("expected burial to reference grave %s, got %v", grave.ID, burial.GraveID)
	}
}

func TestGraveAddBurialIsIdempotent(t *testing.T) {
	grave := NewGrave()
	burial := NewBurial()

	grave.AddBurial(burial)
	grave.AddBurial(burial)

	if len(grave.BurialIDs) != 1 {
		t.Fatalf("expected one burial, got %v", grave.BurialIDs)
	}
}

func TestGraveAddBurialOverwritesStaleReference(t *testing.T) {
	first := NewGrave()
	second := NewGrave()
	burial := NewBurial()

	first.AddBurial(burial)
	second.AddBurial(burial)

	if *burial.GraveID != second.ID {
		t.Fatalf("expected burial to follow the latest grave")
	}
	// the previous grave's in-memory collection is not touched
	if !containsID(first.BurialIDs, burial.ID) {
		t.Fatalf("expected first grave collection to be left unchanged")
	}
}

func TestGraveRemoveBurialGuardsOwnership(t *testing.T) {
	g1 := NewGrave()
	g2 := NewGrave()
	burial := NewBurial()

	g1.AddBurial(burial)
	g2.AddBurial(burial)
	g1.RemoveBurial(burial)

	if containsID(g1.BurialIDs, burial.ID) {
		t.Fatalf("expected burial removed from first grave")
	}
	if burial.GraveID == nil || *burial.GraveID != g2.ID {
		t.Fatalf("expected burial to keep referencing second grave, got %v", burial.GraveID)
	}

	g2.RemoveBurial(burial)
	if burial.GraveID != nil {
		t.Fatalf("expected burial reference cleared, got %v", *burial.GraveID)
	}
}

func TestGraveRemoveBurialAbsentIsNoop(t *testing.T) {
	grave := NewGrave()
	other := NewGrave()
	burial := NewBurial()
	other.AddBurial(burial)

	grave.RemoveBurial(burial)

	if burial.GraveID == nil || *burial.GraveID != other.ID {
		t.Fatalf("expected unrelated remove to leave reference intact")
	}
}

func TestCoverPeerSymmetry(t *testing.T) {
	g1 := NewGrave()
	g2 := NewGrave()
	cover := NewCover()

	g1.AddCover(cover)
	cover.AddGrave(g2)
	cover.AddGrave(g1)

	if diff := cmp.Diff([]string{g1.ID, g2.ID}, cover.GraveIDs); diff != "" {
		t.Fatalf("cover graves mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{cover.ID}, g1.CoverIDs); diff != "" {
		t.Fatalf("grave covers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{cover.ID}, g2.CoverIDs); diff != "" {
		t.Fatalf("grave covers mismatch (-want +got):\n%s", diff)
	}

	g1.RemoveCover(cover)
	if containsID(cover.GraveIDs, g1.ID) || containsID(g1.CoverIDs, cover.ID) {
		t.Fatalf("expected both sides unlinked after RemoveCover")
	}
	cover.RemoveGrave(g2)
	if len(cover.GraveIDs) != 0 || len(g2.CoverIDs) != 0 {
		t.Fatalf("expected both sides unlinked after RemoveGrave")
	}
	cover.RemoveGrave(g2)
}

func TestCemeteryGraveRelationship(t *testing.T) {
	cemetery := NewCemetery()
	other := NewCemetery()
	grave := NewGrave()

	cemetery.AddGrave(grave)
	cemetery.AddGrave(grave)
	if len(cemetery.GraveIDs) != 1 || *grave.CemeteryID != cemetery.ID {
		t.Fatalf("expected single linked grave, got %v", cemetery.GraveIDs)
	}

	other.AddGrave(grave)
	cemetery.RemoveGrave(grave)
	if *grave.CemeteryID != other.ID {
		t.Fatalf("expected reference to stay with the new cemetery")
	}
	other.RemoveGrave(grave)
	if grave.CemeteryID != nil {
		t.Fatalf("expected cemetery reference cleared")
	}
	grave.SetCemetery(cemetery)
	if *grave.CemeteryID != cemetery.ID {
		t.Fatalf("expected SetCemetery to assign reference")
	}
}

func TestGraveBurialAndCoverScenario(t *testing.T) {
	grave := NewGrave()
	grave.Capacity = 3
	if len(grave.BurialIDs) != 0 || len(grave.CoverIDs) != 0 {
		t.Fatalf("expected empty collections on a new grave")
	}

	burial := NewBurial()
	grave.AddBurial(burial)
	if !equalIDs(grave.BurialIDs, burial.ID) || burial.GraveID == nil || *burial.GraveID != grave.ID {
		t.Fatalf("add burial: grave %v, burial grave %v", grave.BurialIDs, burial.GraveID)
	}

	cover := NewCover()
	grave.AddCover(cover)
	if !equalIDs(grave.CoverIDs, cover.ID) || !equalIDs(cover.GraveIDs, grave.ID) {
		t.Fatalf("add cover: grave %v, cover %v", grave.CoverIDs, cover.GraveIDs)
	}

	grave.RemoveBurial(burial)
	if len(grave.BurialIDs) != 0 || burial.GraveID != nil {
		t.Fatalf("remove burial: grave %v, burial grave %v", grave.BurialIDs, burial.GraveID)
	}

	grave.RemoveCover(cover)
	if len(grave.CoverIDs) != 0 || len(cover.GraveIDs) != 0 {
		t.Fatalf("remove cover: grave %v, cover %v", grave.CoverIDs, cover.GraveIDs)
	}
}

func TestRemoveBurialKeepsExternallyReassignedReference(t *testing.T) {
	grave := NewGrave()
	burial := NewBurial()
	grave.AddBurial(burial)

	elsewhere := "grave-3"
	burial.GraveID = &elsewhere
	grave.RemoveBurial(burial)
	if containsID(grave.BurialIDs, burial.ID) {
		t.Fatalf("expected burial removed from the grave collection")
	}
	if burial.GraveID == nil || *burial.GraveID != elsewhere {
		t.Fatalf("expected reference to another grave to survive, got %v", burial.GraveID)
	}
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestBurialReassignmentScenario(t *testing.T) {
	g1 := NewGrave()
	g2 := NewGrave()
	burial := NewBurial()

	g1.AddBurial(burial)
	if *burial.GraveID != g1.ID || !containsID(g1.BurialIDs, burial.ID) {
		t.Fatalf("step 1 failed")
	}
	g2.AddBurial(burial)
	if *burial.GraveID != g2.ID || !containsID(g2.BurialIDs, burial.ID) {
		t.Fatalf("step 2 failed")
	}
	g1.RemoveBurial(burial)
	if *burial.GraveID != g2.ID || containsID(g1.BurialIDs, burial.ID) {
		t.Fatalf("step 3 failed")
	}
	g2.RemoveBurial(burial)
	if burial.GraveID != nil || containsID(g2.BurialIDs, burial.ID) {
		t.Fatalf("step 4 failed")
	}
}

func TestRelationshipsBeforeSaveUseAssignedIDs(t *testing.T) {
	grave := NewGrave()
	if grave.ID == "" || grave.Capacity != 1 {
		t.Fatalf("expected constructor to assign id and default capacity, got %+v", grave)
	}
	if NewGrave().ID == grave.ID {
		t.Fatalf("expected unique identifiers")
	}
}

func TestBurialSetGraveNilClears(t *testing.T) {
	grave := NewGrave()
	burial := NewBurial()
	burial.SetGrave(grave)
	burial.SetGrave(nil)
	if burial.GraveID != nil {
		t.Fatalf("expected nil grave to clear reference")
	}
}
