// Package core implements the gravecore service layer: transactional
// operations over a persistent store with audit, metrics, tracing and change
// event publication wrapped around every call.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gravecore/internal/infra/persistence/memory"
	"gravecore/pkg/domain"
)

// DefaultChangeTopic is the topic committed change log entries are published to.
const DefaultChangeTopic = "gravecore.changes"

// Service exposes transactional CRUD and relationship operations.
type Service struct {
	store     domain.PersistentStore
	engine    *domain.RulesEngine
	clock     Clock
	now       func() time.Time
	logger    Logger
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	publisher ChangePublisher
	topic     string
	mu        sync.RWMutex
}

type serviceOptions struct {
	clock     Clock
	logger    Logger
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	publisher ChangePublisher
	topic     string
}

// Option customises a Service.
type Option func(*serviceOptions)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder replaces the default store-backed audit recorder.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(o *serviceOptions) {
		if rec != nil {
			o.audit = rec
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for audit timestamps and durations.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithChangePublisher publishes every committed change log entry as JSON.
// An empty topic selects DefaultChangeTopic.
func WithChangePublisher(pub ChangePublisher, topic string) Option {
	return func(o *serviceOptions) {
		o.publisher = pub
		o.topic = topic
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	if store == nil {
		store = memory.NewStore(NewDefaultRulesEngine())
	}
	o := serviceOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.audit == nil {
		o.audit = NewStoreAuditRecorder(store, o.logger)
	}
	if o.topic == "" {
		o.topic = DefaultChangeTopic
	}
	var engine *domain.RulesEngine
	if withEngine, ok := store.(interface{ RulesEngine() *domain.RulesEngine }); ok {
		engine = withEngine.RulesEngine()
	}
	s := &Service{
		store:     store,
		engine:    engine,
		clock:     o.clock,
		now:       o.clock.Now,
		logger:    o.logger,
		audit:     o.audit,
		metrics:   o.metrics,
		tracer:    o.tracer,
		publisher: o.publisher,
		topic:     o.topic,
	}
	if s.publisher != nil {
		store.AddCommitHook(s.publishChanges)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Rules lists the names of the rules evaluated on every commit.
func (s *Service) Rules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return nil
	}
	return s.engine.Rules()
}

// RegisterRule adds a rule to the store's engine.
func (s *Service) RegisterRule(rule domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return errors.New("store does not expose a rules engine")
	}
	s.engine.Register(rule)
	return nil
}

func (s *Service) publishChanges(_ context.Context, entries []domain.ChangeLogEntry) {
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			s.logger.Error("encode change event", "entity", entry.Entity, "entity_id", entry.EntityID, "error", err)
			continue
		}
		if err := s.publisher.Publish(s.topic, payload); err != nil {
			s.logger.Warn("publish change event", "topic", s.topic, "entity_id", entry.EntityID, "error", err)
		}
	}
}

// operation names one audited call.
type operation struct {
	name   string
	entity domain.EntityType
	action domain.Action
	id     string
}

// run wraps fn with tracing, metrics, logging and audit. fn reports the ID
// of the record it touched when op.id is not known up front.
func (s *Service) run(ctx context.Context, op operation, fn func(ctx context.Context) (string, domain.Result, error)) (domain.Result, error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, op.name)
	id, res, err := fn(ctx)
	if id == "" {
		id = op.id
	}
	duration := s.now().Sub(started)
	span.End(err)
	s.metrics.Observe(ctx, op.name, err == nil, duration)

	entry := domain.AuditEntry{
		Operation: op.name,
		Entity:    op.entity,
		Action:    op.action,
		EntityID:  id,
		Actor:     domain.ActorFromContext(ctx),
		Status:    domain.AuditStatusSuccess,
		Duration:  duration,
		Timestamp: started,
	}
	if err != nil {
		entry.Status = domain.AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "operation", op.name, "entity_id", id, "actor", entry.Actor, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op.name, "entity_id", id, "actor", entry.Actor, "duration", duration)
	}
	for _, v := range res.Violations {
		if v.Severity != domain.SeverityBlock {
			s.logger.Warn("rule violation", "rule", v.Rule, "severity", v.Severity, "entity_id", v.EntityID, "message", v.Message)
		}
	}
	s.audit.Record(ctx, entry)
	return res, err
}

func (s *Service) transact(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return s.store.RunInTransaction(ctx, fn)
}

// Cemeteries -----------------------------------------------------------------

// CreateCemetery persists a new cemetery.
func (s *Service) CreateCemetery(ctx context.Context, cemetery domain.Cemetery) (domain.Cemetery, domain.Result, error) {
	var created domain.Cemetery
	res, err := s.run(ctx, operation{name: "create_cemetery", entity: domain.EntityCemetery, action: domain.ActionCreate}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateCemetery(cemetery)
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// UpdateCemetery mutates a cemetery.
func (s *Service) UpdateCemetery(ctx context.Context, id string, mutator func(*domain.Cemetery) error) (domain.Cemetery, domain.Result, error) {
	var updated domain.Cemetery
	res, err := s.run(ctx, operation{name: "update_cemetery", entity: domain.EntityCemetery, action: domain.ActionUpdate, id: id}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateCemetery(id, mutator)
			return err
		})
		return id, res, err
	})
	return updated, res, err
}

// DeleteCemetery removes a cemetery; its graves stay, without a cemetery.
func (s *Service) DeleteCemetery(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, operation{name: "delete_cemetery", entity: domain.EntityCemetery, action: domain.ActionDelete, id: id}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error { return tx.DeleteCemetery(id) })
		return id, res, err
	})
}

// GetCemetery loads one cemetery.
func (s *Service) GetCemetery(ctx context.Context, id string) (domain.Cemetery, error) {
	var found domain.Cemetery
	_, err := s.run(ctx, operation{name: "get_cemetery", entity: domain.EntityCemetery, action: domain.ActionRead, id: id}, func(context.Context) (string, domain.Result, error) {
		var ok bool
		if found, ok = s.store.GetCemetery(id); !ok {
			return id, domain.Result{}, domain.NotFoundError{Entity: domain.EntityCemetery, ID: id}
		}
		return id, domain.Result{}, nil
	})
	return found, err
}

// ListCemeteries returns one page of cemeteries.
func (s *Service) ListCemeteries(ctx context.Context, q ListQuery) (Page[domain.Cemetery], error) {
	var page Page[domain.Cemetery]
	_, err := s.run(ctx, operation{name: "list_cemeteries", entity: domain.EntityCemetery, action: domain.ActionRead}, func(context.Context) (string, domain.Result, error) {
		var err error
		page, err = Apply(s.store.ListCemeteries(), q)
		return "", domain.Result{}, err
	})
	return page, err
}

// Graves ---------------------------------------------------------------------

// CreateGrave persists a new grave.
func (s *Service) CreateGrave(ctx context.Context, grave domain.Grave) (domain.Grave, domain.Result, error) {
	var created domain.Grave
	res, err := s.run(ctx, operation{name: "create_grave", entity: domain.EntityGrave, action: domain.ActionCreate}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateGrave(grave)
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// UpdateGrave mutates a grave. Burial and cover lists are derived and ignored.
func (s *Service) UpdateGrave(ctx context.Context, id string, mutator func(*domain.Grave) error) (domain.Grave, domain.Result, error) {
	var updated domain.Grave
	res, err := s.run(ctx, operation{name: "update_grave", entity: domain.EntityGrave, action: domain.ActionUpdate, id: id}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateGrave(id, mutator)
			return err
		})
		return id, res, err
	})
	return updated, res, err
}

// DeleteGrave removes a grave, detaching its burials and covers.
func (s *Service) DeleteGrave(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, operation{name: "delete_grave", entity: domain.EntityGrave, action: domain.ActionDelete, id: id}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error { return tx.DeleteGrave(id) })
		return id, res, err
	})
}

// GetGrave loads one grave.
func (s *Service) GetGrave(ctx context.Context, id string) (domain.Grave, error) {
	var found domain.Grave
	_, err := s.run(ctx, operation{name: "get_grave", entity: domain.EntityGrave, action: domain.ActionRead, id: id}, func(context.Context) (string, domain.Result, error) {
		var ok bool
		if found, ok = s.store.GetGrave(id); !ok {
			return id, domain.Result{}, domain.NotFoundError{Entity: domain.EntityGrave, ID: id}
		}
		return id, domain.Result{}, nil
	})
	return found, err
}

// ListGraves returns one page of graves.
func (s *Service) ListGraves(ctx context.Context, q ListQuery) (Page[domain.Grave], error) {
	var page Page[domain.Grave]
	_, err := s.run(ctx, operation{name: "list_graves", entity: domain.EntityGrave, action: domain.ActionRead}, func(context.Context) (string, domain.Result, error) {
		var err error
		page, err = Apply(s.store.ListGraves(), q)
		return "", domain.Result{}, err
	})
	return page, err
}

// Burials --------------------------------------------------------------------

// CreateBurial persists a new burial.
func (s *Service) CreateBurial(ctx context.Context, burial domain.Burial) (domain.Burial, domain.Result, error) {
	var created domain.Burial
	res, err := s.run(ctx, operation{name: "create_burial", entity: domain.EntityBurial, action: domain.ActionCreate}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateBurial(burial)
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// UpdateBurial mutates a burial.
func (s *Service) UpdateBurial(ctx context.Context, id string, mutator func(*domain.Burial) error) (domain.Burial, domain.Result, error) {
	var updated domain.Burial
	res, err := s.run(ctx, operation{name: "update_burial", entity: domain.EntityBurial, action: domain.ActionUpdate, id: id}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateBurial(id, mutator)
			return err
		})
		return id, res, err
	})
	return updated, res, err
}

// DeleteBurial removes a burial.
func (s *Service) DeleteBurial(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, operation{name: "delete_burial", entity: domain.EntityBurial, action: domain.ActionDelete, id: id}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error { return tx.DeleteBurial(id) })
		return id, res, err
	})
}

// GetBurial loads one burial.
func (s *Service) GetBurial(ctx context.Context, id string) (domain.Burial, error) {
	var found domain.Burial
	_, err := s.run(ctx, operation{name: "get_burial", entity: domain.EntityBurial, action: domain.ActionRead, id: id}, func(context.Context) (string, domain.Result, error) {
		var ok bool
		if found, ok = s.store.GetBurial(id); !ok {
			return id, domain.Result{}, domain.NotFoundError{Entity: domain.EntityBurial, ID: id}
		}
		return id, domain.Result{}, nil
	})
	return found, err
}

// ListBurials returns one page of burials.
func (s *Service) ListBurials(ctx context.Context, q ListQuery) (Page[domain.Burial], error) {
	var page Page[domain.Burial]
	_, err := s.run(ctx, operation{name: "list_burials", entity: domain.EntityBurial, action: domain.ActionRead}, func(context.Context) (string, domain.Result, error) {
		var err error
		page, err = Apply(s.store.ListBurials(), q)
		return "", domain.Result{}, err
	})
	return page, err
}

// Covers ---------------------------------------------------------------------

// CreateCover persists a new cover.
func (s *Service) CreateCover(ctx context.Context, cover domain.Cover) (domain.Cover, domain.Result, error) {
	var created domain.Cover
	res, err := s.run(ctx, operation{name: "create_cover", entity: domain.EntityCover, action: domain.ActionCreate}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateCover(cover)
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// UpdateCover mutates a cover, including the graves it covers.
func (s *Service) UpdateCover(ctx context.Context, id string, mutator func(*domain.Cover) error) (domain.Cover, domain.Result, error) {
	var updated domain.Cover
	res, err := s.run(ctx, operation{name: "update_cover", entity: domain.EntityCover, action: domain.ActionUpdate, id: id}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateCover(id, mutator)
			return err
		})
		return id, res, err
	})
	return updated, res, err
}

// DeleteCover removes a cover.
func (s *Service) DeleteCover(ctx context.Context, id string) (domain.Result, error) {
	return s.run(ctx, operation{name: "delete_cover", entity: domain.EntityCover, action: domain.ActionDelete, id: id}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error { return tx.DeleteCover(id) })
		return id, res, err
	})
}

// GetCover loads one cover.
func (s *Service) GetCover(ctx context.Context, id string) (domain.Cover, error) {
	var found domain.Cover
	_, err := s.run(ctx, operation{name: "get_cover", entity: domain.EntityCover, action: domain.ActionRead, id: id}, func(context.Context) (string, domain.Result, error) {
		var ok bool
		if found, ok = s.store.GetCover(id); !ok {
			return id, domain.Result{}, domain.NotFoundError{Entity: domain.EntityCover, ID: id}
		}
		return id, domain.Result{}, nil
	})
	return found, err
}

// ListCovers returns one page of covers.
func (s *Service) ListCovers(ctx context.Context, q ListQuery) (Page[domain.Cover], error) {
	var page Page[domain.Cover]
	_, err := s.run(ctx, operation{name: "list_covers", entity: domain.EntityCover, action: domain.ActionRead}, func(context.Context) (string, domain.Result, error) {
		var err error
		page, err = Apply(s.store.ListCovers(), q)
		return "", domain.Result{}, err
	})
	return page, err
}

// Relationships --------------------------------------------------------------

// AddBurialToGrave assigns a burial to a grave, moving it out of any previous grave.
func (s *Service) AddBurialToGrave(ctx context.Context, graveID, burialID string) (domain.Grave, domain.Result, error) {
	var grave domain.Grave
	res, err := s.run(ctx, operation{name: "add_burial_to_grave", entity: domain.EntityGrave, action: domain.ActionUpdate, id: graveID}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			grave, err = tx.AddBurial(graveID, burialID)
			return err
		})
		return graveID, res, err
	})
	return grave, res, err
}

// RemoveBurialFromGrave detaches a burial if it rests in the grave.
func (s *Service) RemoveBurialFromGrave(ctx context.Context, graveID, burialID string) (domain.Grave, domain.Result, error) {
	var grave domain.Grave
	res, err := s.run(ctx, operation{name: "remove_burial_from_grave", entity: domain.EntityGrave, action: domain.ActionUpdate, id: graveID}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			grave, err = tx.RemoveBurial(graveID, burialID)
			return err
		})
		return graveID, res, err
	})
	return grave, res, err
}

// AddCoverToGrave links a cover and a grave.
func (s *Service) AddCoverToGrave(ctx context.Context, graveID, coverID string) (domain.Grave, domain.Result, error) {
	var grave domain.Grave
	res, err := s.run(ctx, operation{name: "add_cover_to_grave", entity: domain.EntityGrave, action: domain.ActionUpdate, id: graveID}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			grave, err = tx.AddCover(graveID, coverID)
			return err
		})
		return graveID, res, err
	})
	return grave, res, err
}

// RemoveCoverFromGrave unlinks a cover and a grave.
func (s *Service) RemoveCoverFromGrave(ctx context.Context, graveID, coverID string) (domain.Grave, domain.Result, error) {
	var grave domain.Grave
	res, err := s.run(ctx, operation{name: "remove_cover_from_grave", entity: domain.EntityGrave, action: domain.ActionUpdate, id: graveID}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			grave, err = tx.RemoveCover(graveID, coverID)
			return err
		})
		return graveID, res, err
	})
	return grave, res, err
}

// AddGraveToCemetery places a grave in a cemetery.
func (s *Service) AddGraveToCemetery(ctx context.Context, cemeteryID, graveID string) (domain.Cemetery, domain.Result, error) {
	var cemetery domain.Cemetery
	res, err := s.run(ctx, operation{name: "add_grave_to_cemetery", entity: domain.EntityCemetery, action: domain.ActionUpdate, id: cemeteryID}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			cemetery, err = tx.AddGrave(cemeteryID, graveID)
			return err
		})
		return cemeteryID, res, err
	})
	return cemetery, res, err
}

// RemoveGraveFromCemetery takes a grave out of a cemetery it belongs to.
func (s *Service) RemoveGraveFromCemetery(ctx context.Context, cemeteryID, graveID string) (domain.Cemetery, domain.Result, error) {
	var cemetery domain.Cemetery
	res, err := s.run(ctx, operation{name: "remove_grave_from_cemetery", entity: domain.EntityCemetery, action: domain.ActionUpdate, id: cemeteryID}, func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.transact(ctx, func(tx domain.Transaction) error {
			var err error
			cemetery, err = tx.RemoveGrave(cemeteryID, graveID)
			return err
		})
		return cemeteryID, res, err
	})
	return cemetery, res, err
}

// History --------------------------------------------------------------------

func (s *Service) exists(entity domain.EntityType, id string) bool {
	var ok bool
	switch entity {
	case domain.EntityCemetery:
		_, ok = s.store.GetCemetery(id)
	case domain.EntityGrave:
		_, ok = s.store.GetGrave(id)
	case domain.EntityBurial:
		_, ok = s.store.GetBurial(id)
	case domain.EntityCover:
		_, ok = s.store.GetCover(id)
	}
	return ok
}

// ChangeLog returns the versioned history of a record. History outlives the
// record; NotFoundError is returned only when there is neither.
func (s *Service) ChangeLog(ctx context.Context, entity domain.EntityType, id string) ([]domain.ChangeLogEntry, error) {
	var entries []domain.ChangeLogEntry
	_, err := s.run(ctx, operation{name: "change_log", entity: entity, action: domain.ActionRead, id: id}, func(context.Context) (string, domain.Result, error) {
		entries = s.store.ChangeLog(entity, id)
		if len(entries) == 0 && !s.exists(entity, id) {
			return id, domain.Result{}, domain.NotFoundError{Entity: entity, ID: id}
		}
		return id, domain.Result{}, nil
	})
	return entries, err
}

// AuditTrail returns the audit entries recorded for a record. The lookup is
// read before it is itself audited.
func (s *Service) AuditTrail(ctx context.Context, entity domain.EntityType, id string) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	_, err := s.run(ctx, operation{name: "audit_trail", entity: entity, action: domain.ActionRead, id: id}, func(context.Context) (string, domain.Result, error) {
		entries = s.store.AuditTrail(entity, id)
		if len(entries) == 0 && !s.exists(entity, id) {
			return id, domain.Result{}, domain.NotFoundError{Entity: entity, ID: id}
		}
		return id, domain.Result{}, nil
	})
	return entries, err
}
