package core

import (
	"time"

	"gravecore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewGraveCapacityRule())
	engine.Register(NewGraveRightsExpiredRule(nil))
	return engine
}

func nowUTC() time.Time { return time.Now().UTC() }
