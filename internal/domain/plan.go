package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is reference data from the subscription engine's point of view:
// it is looked up and compared, never mutated by the lifecycle paths.
type Plan struct {
	ID            string                     `json:"id"`
	Reference     string                     `json:"reference"`
	Name          string                     `json:"name"`
	Price         map[string]decimal.Decimal `json:"price"`
	VATIncluded   bool                       `json:"vatIncluded"`
	AllowMultiple bool                       `json:"allowMultiple"`
	Position      int                        `json:"position"`
	Services      []Service                  `json:"services,omitempty"`
	DateCreated   time.Time                  `json:"dateCreated"`
	DateUpdated   time.Time                  `json:"dateUpdated"`
}

// Service is a feature bundled with a Plan (e.g. "premium-support").
type Service struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreatePlanRequest is the input for creating a plan. Services are given by
// reference and translated to catalog entries before the plan is stored.
type CreatePlanRequest struct {
	Reference     string                     `json:"reference" validate:"required"`
	Name          string                     `json:"name" validate:"required"`
	Price         map[string]decimal.Decimal `json:"price" validate:"required"`
	VATIncluded   bool                       `json:"vatIncluded"`
	AllowMultiple bool                       `json:"allowMultiple"`
	Position      int                        `json:"position"`
	Services      []string                   `json:"services"`
}
