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

// UserHandler mounts the user CRUD resource. The account field in request
// bodies is an account reference, translated to the internal id before the
// user is stored.
type UserHandler struct {
	repo     *repository.UserRepository
	accounts *repository.AccountRepository
	validate *validator.Validate
}

func NewUserHandler(repo *repository.UserRepository, accounts *repository.AccountRepository) *UserHandler {
	return &UserHandler{
		repo:     repo,
		accounts: accounts,
		validate: validator.New(),
	}
}

// Mount registers /api/users on the router.
func (h *UserHandler) Mount(r chi.Router) {
	resource := NewResource[domain.User](h.repo, h.decodeUser,
		AfterRead[domain.User](h.populateAccount),
	)
	resource.Mount(r)
}

type userBody struct {
	Reference string `json:"reference" validate:"required"`
	Email     string `json:"email"`
	Account   string `json:"account"`
}

func (h *UserHandler) decodeUser(r *http.Request) (*domain.User, error) {
	var req userBody
	if err := DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		req.Reference = chi.URLParam(r, "reference")
	}
	if err := h.validate.Struct(&req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	accountID := ""
	if req.Account != "" {
		account, err := h.accounts.FindByReference(r.Context(), req.Account)
		if err != nil {
			return nil, domain.ErrInternal("failed to look up account", err)
		}
		if account == nil {
			return nil, domain.ErrValidation("unknown account: " + req.Account)
		}
		accountID = account.ID
	}

	now := time.Now()
	return &domain.User{
		ID:          uuid.New().String(),
		Reference:   req.Reference,
		Email:       req.Email,
		AccountID:   accountID,
		DateCreated: now,
		DateUpdated: now,
	}, nil
}

// populateAccount attaches the linked account to a user read.
func (h *UserHandler) populateAccount(r *http.Request, result any) (any, error) {
	user, ok := result.(*domain.User)
	if !ok || user.AccountID == "" {
		return result, nil
	}
	account, err := h.accounts.FindByID(r.Context(), user.AccountID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load account", err)
	}
	if account == nil {
		return user, nil
	}
	return struct {
		domain.User
		Account *domain.Account `json:"account"`
	}{User: *user, Account: account}, nil
}
