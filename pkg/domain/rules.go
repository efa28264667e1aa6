package domain

import (
	"context"
	"sync"
)

// RuleView provides read-only access to domain entities for rule evaluation.
type RuleView interface {
	ListCemeteries() []Cemetery
	ListGraves() []Grave
	ListBurials() []Burial
	ListCovers() []Cover
	FindCemetery(id string) (Cemetery, bool)
	FindGrave(id string) (Grave, bool)
	FindBurial(id string) (Burial, bool)
	FindCover(id string) (Cover, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation. Rules may be registered while
// transactions are being evaluated.
type RulesEngine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
}

func (e *RulesEngine) registered() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// Rules returns the registered rule names in evaluation order.
func (e *RulesEngine) Rules() []string {
	rules := e.registered()
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, rule.Name())
	}
	return names
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.registered() {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
