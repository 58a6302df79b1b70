package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Pentico/subscription-service/internal/domain"
	"github.com/Pentico/subscription-service/internal/pricing"
	"github.com/Pentico/subscription-service/internal/repository"
)

// Whether the requesting user pays VAT. Everyone does until per-account
// VAT exemption lands.
const userPaysVAT = true

// PlanHandler mounts the plan CRUD resource with its pricing hooks.
type PlanHandler struct {
	repo       *repository.PlanRepository
	vatPercent decimal.Decimal
	validate   *validator.Validate
}

func NewPlanHandler(repo *repository.PlanRepository, vatPercent decimal.Decimal) *PlanHandler {
	return &PlanHandler{
		repo:       repo,
		vatPercent: vatPercent,
		validate:   validator.New(),
	}
}

// Mount registers /api/plans on the router.
func (h *PlanHandler) Mount(r chi.Router) {
	resource := NewResource[domain.Plan](h.repo, h.decodePlan,
		AfterRead[domain.Plan](h.populateServices, h.priceTransform),
		AfterList[domain.Plan](h.priceTransform),
	)
	resource.Mount(r)
}

// pricedPlan is the wire shape of a plan: stored amounts replaced by the
// displayed price, plus the VAT breakdown.
type pricedPlan struct {
	domain.Plan
	Price map[string]decimal.Decimal `json:"price"`
	VAT   map[string]decimal.Decimal `json:"vat"`
}

func (h *PlanHandler) pricePlan(plan domain.Plan) pricedPlan {
	p := pricing.Compute(&plan, h.vatPercent, userPaysVAT)
	return pricedPlan{Plan: plan, Price: p.Price, VAT: p.VAT}
}

// priceTransform applies the pricing engine uniformly to a single plan or a
// collection of plans.
func (h *PlanHandler) priceTransform(r *http.Request, result any) (any, error) {
	switch v := result.(type) {
	case *domain.Plan:
		return h.pricePlan(*v), nil
	case []domain.Plan:
		priced := make([]pricedPlan, len(v))
		for i, plan := range v {
			priced[i] = h.pricePlan(plan)
		}
		return priced, nil
	default:
		return result, nil
	}
}

func (h *PlanHandler) populateServices(r *http.Request, result any) (any, error) {
	plan, ok := result.(*domain.Plan)
	if !ok {
		return result, nil
	}
	if err := h.repo.PopulateServices(r.Context(), plan); err != nil {
		return nil, domain.ErrInternal("failed to load plan services", err)
	}
	return plan, nil
}

// decodePlan parses a plan body and translates service references into
// catalog entries. Unknown service references are a validation error.
func (h *PlanHandler) decodePlan(r *http.Request) (*domain.Plan, error) {
	var req domain.CreatePlanRequest
	if err := DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		req.Reference = chi.URLParam(r, "reference")
	}
	if err := h.validate.Struct(&req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	services, err := h.repo.FindServicesByReferences(r.Context(), req.Services)
	if err != nil {
		return nil, domain.ErrInternal("failed to look up services", err)
	}
	if len(services) != len(req.Services) {
		return nil, domain.ErrValidation("unknown service reference")
	}

	now := time.Now()
	return &domain.Plan{
		ID:            uuid.New().String(),
		Reference:     req.Reference,
		Name:          req.Name,
		Price:         req.Price,
		VATIncluded:   req.VATIncluded,
		AllowMultiple: req.AllowMultiple,
		Position:      req.Position,
		Services:      services,
		DateCreated:   now,
		DateUpdated:   now,
	}, nil
}
