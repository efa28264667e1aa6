package core

import (
	"context"
	"fmt"
	"time"

	"gravecore/pkg/domain"
)

// NewGraveRightsExpiredRule warns when a burial is placed in a grave whose
// rights have expired. now defaults to the wall clock.
func NewGraveRightsExpiredRule(now func() time.Time) domain.Rule {
	if now == nil {
		now = nowUTC
	}
	return graveRightsExpiredRule{now: now}
}

type graveRightsExpiredRule struct {
	now func() time.Time
}

func (graveRightsExpiredRule) Name() string { return "grave_rights_expired" }

func (r graveRightsExpiredRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	now := r.now()
	for _, change := range changes {
		if change.Entity != domain.EntityBurial || change.Action == domain.ActionDelete {
			continue
		}
		after, ok := change.After.(domain.Burial)
		if !ok || after.GraveID == nil {
			continue
		}
		if before, ok := change.Before.(domain.Burial); ok && before.GraveID != nil && *before.GraveID == *after.GraveID {
			continue
		}
		grave, ok := view.FindGrave(*after.GraveID)
		if !ok || grave.RightsExpireAt == nil || !grave.RightsExpireAt.Before(now) {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "grave_rights_expired",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("burial %s placed in grave %s whose rights expired %s", after.ID, grave.ID, grave.RightsExpireAt.Format(time.DateOnly)),
			Entity:   domain.EntityBurial,
			EntityID: after.ID,
		})
	}
	return res, nil
}
