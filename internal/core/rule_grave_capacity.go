package core

import (
	"context"
	"fmt"

	"gravecore/pkg/domain"
)

// NewGraveCapacityRule returns the in-transaction rule that blocks a grave
// from holding more burials than its capacity.
func NewGraveCapacityRule() domain.Rule {
	return graveCapacityRule{}
}

type graveCapacityRule struct{}

func (graveCapacityRule) Name() string { return "grave_capacity" }

func (graveCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	occupancy := make(map[string]int)
	for _, burial := range view.ListBurials() {
		if burial.GraveID == nil {
			continue
		}
		occupancy[*burial.GraveID]++
	}

	res := domain.Result{}
	for _, grave := range view.ListGraves() {
		count := occupancy[grave.ID]
		if count > grave.Capacity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "grave_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("grave %s over capacity: %d/%d burials", grave.ID, count, grave.Capacity),
				Entity:   domain.EntityGrave,
				EntityID: grave.ID,
			})
		}
	}
	return res, nil
}
