package http

import (
	"context"

	"gravecore/internal/core"
	"gravecore/pkg/domain"
)

// crud binds the typed service operations of one entity.
type crud[T domain.Record] struct {
	create func(context.Context, T) (T, domain.Result, error)
	update func(context.Context, string, func(*T) error) (T, domain.Result, error)
	delete func(context.Context, string) (domain.Result, error)
	get    func(context.Context, string) (T, error)
	list   func(context.Context, core.ListQuery) (core.Page[T], error)
	// keep copies the fields a replacement must not touch from cur into next.
	keep func(cur, next *T)
}

// resource is the untyped view of a crud the routes are registered from.
type resource struct {
	entity  domain.EntityType
	name    string
	create  func(ctx context.Context, body []byte) (any, domain.Result, error)
	replace func(ctx context.Context, id string, body []byte) (any, domain.Result, error)
	delete  func(ctx context.Context, id string) (domain.Result, error)
	get     func(ctx context.Context, id string) (any, error)
	list    func(ctx context.Context, q core.ListQuery) (any, error)
}

func newResource[T domain.Record](entity domain.EntityType, ops crud[T], payloads *payloadValidator) resource {
	schema, _ := domain.SchemaFor(entity)
	return resource{
		entity: entity,
		name:   schema.Resource,
		create: func(ctx context.Context, body []byte) (any, domain.Result, error) {
			var in T
			if err := payloads.decode(entity, body, &in); err != nil {
				return nil, domain.Result{}, err
			}
			return ops.create(ctx, in)
		},
		replace: func(ctx context.Context, id string, body []byte) (any, domain.Result, error) {
			var in T
			if err := payloads.decode(entity, body, &in); err != nil {
				return nil, domain.Result{}, err
			}
			return ops.update(ctx, id, func(cur *T) error {
				next := in
				ops.keep(cur, &next)
				*cur = next
				return nil
			})
		},
		delete: ops.delete,
		get: func(ctx context.Context, id string) (any, error) {
			return ops.get(ctx, id)
		},
		list: func(ctx context.Context, q core.ListQuery) (any, error) {
			return ops.list(ctx, q)
		},
	}
}
