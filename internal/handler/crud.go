package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Pentico/subscription-service/internal/domain"
)

// Store is the persistence surface a CRUD resource needs. Models are
// addressed by their reference field, never by internal id.
type Store[T any] interface {
	List(ctx context.Context) ([]T, error)
	FindByReference(ctx context.Context, reference string) (*T, error)
	Create(ctx context.Context, model *T) error
	Update(ctx context.Context, model *T) error
	DeleteByReference(ctx context.Context, reference string) error
}

// Hook runs before create/update, after the body has been decoded.
type Hook[T any] func(r *http.Request, model *T) error

// Transform reshapes a read/list result before it is written out.
type Transform[T any] func(r *http.Request, result any) (any, error)

// Resource is a model-agnostic CRUD surface keyed by reference, with hook
// points around each action. Plan, User and Account endpoints are all
// mounted through one of these; only the hooks differ.
type Resource[T any] struct {
	store        Store[T]
	decode       func(r *http.Request) (*T, error)
	beforeCreate []Hook[T]
	beforeUpdate []Hook[T]
	afterRead    []Transform[T]
	afterList    []Transform[T]
}

// ResourceOption configures hooks on a Resource.
type ResourceOption[T any] func(*Resource[T])

func BeforeCreate[T any](hooks ...Hook[T]) ResourceOption[T] {
	return func(res *Resource[T]) { res.beforeCreate = append(res.beforeCreate, hooks...) }
}

func BeforeUpdate[T any](hooks ...Hook[T]) ResourceOption[T] {
	return func(res *Resource[T]) { res.beforeUpdate = append(res.beforeUpdate, hooks...) }
}

func AfterRead[T any](transforms ...Transform[T]) ResourceOption[T] {
	return func(res *Resource[T]) { res.afterRead = append(res.afterRead, transforms...) }
}

func AfterList[T any](transforms ...Transform[T]) ResourceOption[T] {
	return func(res *Resource[T]) { res.afterList = append(res.afterList, transforms...) }
}

// NewResource builds a CRUD resource. decode parses and validates a request
// body into a model; it is used for both create and update.
func NewResource[T any](store Store[T], decode func(r *http.Request) (*T, error), opts ...ResourceOption[T]) *Resource[T] {
	res := &Resource[T]{store: store, decode: decode}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// Mount registers the CRUD routes on the router.
func (res *Resource[T]) Mount(r chi.Router) {
	r.Get("/", res.list)
	r.Post("/", res.create)
	r.Get("/{reference}", res.read)
	r.Put("/{reference}", res.update)
	r.Delete("/{reference}", res.delete)
}

func (res *Resource[T]) list(w http.ResponseWriter, r *http.Request) {
	models, err := res.store.List(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	if models == nil {
		models = []T{}
	}

	var result any = models
	for _, transform := range res.afterList {
		if result, err = transform(r, result); err != nil {
			Error(w, err)
			return
		}
	}
	JSON(w, http.StatusOK, result)
}

func (res *Resource[T]) read(w http.ResponseWriter, r *http.Request) {
	model, err := res.findOr404(w, r)
	if err != nil {
		return
	}

	var result any = model
	for _, transform := range res.afterRead {
		if result, err = transform(r, result); err != nil {
			Error(w, err)
			return
		}
	}
	JSON(w, http.StatusOK, result)
}

func (res *Resource[T]) create(w http.ResponseWriter, r *http.Request) {
	model, err := res.decode(r)
	if err != nil {
		Error(w, err)
		return
	}
	for _, hook := range res.beforeCreate {
		if err := hook(r, model); err != nil {
			Error(w, err)
			return
		}
	}
	if err := res.store.Create(r.Context(), model); err != nil {
		Error(w, domain.ErrPersistence("failed to create resource", err))
		return
	}
	JSON(w, http.StatusCreated, model)
}

func (res *Resource[T]) update(w http.ResponseWriter, r *http.Request) {
	if _, err := res.findOr404(w, r); err != nil {
		return
	}

	model, err := res.decode(r)
	if err != nil {
		Error(w, err)
		return
	}
	for _, hook := range res.beforeUpdate {
		if err := hook(r, model); err != nil {
			Error(w, err)
			return
		}
	}
	if err := res.store.Update(r.Context(), model); err != nil {
		Error(w, domain.ErrPersistence("failed to update resource", err))
		return
	}
	JSON(w, http.StatusOK, model)
}

func (res *Resource[T]) delete(w http.ResponseWriter, r *http.Request) {
	if _, err := res.findOr404(w, r); err != nil {
		return
	}

	reference := chi.URLParam(r, "reference")
	if err := res.store.DeleteByReference(r.Context(), reference); err != nil {
		Error(w, domain.ErrPersistence("failed to delete resource", err))
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "deleted " + reference})
}

// findOr404 loads the addressed model or writes a 404. The returned error is
// only a signal that the response has been written.
func (res *Resource[T]) findOr404(w http.ResponseWriter, r *http.Request) (*T, error) {
	reference := chi.URLParam(r, "reference")
	model, err := res.store.FindByReference(r.Context(), reference)
	if err != nil {
		Error(w, err)
		return nil, err
	}
	if model == nil {
		notFound := domain.ErrNotFound("not found: " + reference)
		Error(w, notFound)
		return nil, notFound
	}
	return model, nil
}
