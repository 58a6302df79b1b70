package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Pentico/subscription-service/internal/domain"
	"github.com/Pentico/subscription-service/internal/repository"
)

// AccountHandler mounts the account CRUD resource. Subscriptions are
// deliberately not writable here; they only change through the lifecycle
// endpoints.
type AccountHandler struct {
	repo     *repository.AccountRepository
	validate *validator.Validate
}

func NewAccountHandler(repo *repository.AccountRepository) *AccountHandler {
	return &AccountHandler{repo: repo, validate: validator.New()}
}

// Mount registers /api/accounts on the router.
func (h *AccountHandler) Mount(r chi.Router) {
	resource := NewResource[domain.Account](h.repo, h.decodeAccount)
	resource.Mount(r)
}

type accountBody struct {
	Reference string `json:"reference" validate:"required"`
	Email     string `json:"email"`
}

func (h *AccountHandler) decodeAccount(r *http.Request) (*domain.Account, error) {
	var req accountBody
	if err := DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		req.Reference = chi.URLParam(r, "reference")
	}
	if err := h.validate.Struct(&req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	now := time.Now()
	return &domain.Account{
		ID:            uuid.New().String(),
		Reference:     req.Reference,
		Email:         req.Email,
		Subscriptions: []domain.Subscription{},
		DateCreated:   now,
		DateUpdated:   now,
	}, nil
}
