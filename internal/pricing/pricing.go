// Package pricing computes the displayed price and VAT breakdown for plans.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Pentico/subscription-service/internal/domain"
)

// DefaultVATPercent is used when no VAT rate is configured.
var DefaultVATPercent = decimal.NewFromFloat(0.25)

// Pricing holds the displayed amounts per time unit ("month", "year", ...).
type Pricing struct {
	Price map[string]decimal.Decimal `json:"price"`
	VAT   map[string]decimal.Decimal `json:"vat"`
}

// Compute derives the displayed price and VAT amount for every time unit in
// the plan's price map. It is pure: the plan is not modified. All amounts are
// rounded to 3 decimal places, half away from zero.
//
// The rules, with p = vatPercent:
//   - user does not pay VAT: vat = 0, price = amount*(1-p) if VAT was
//     included in the stored amount, otherwise the amount unchanged.
//   - user pays VAT, VAT included: vat = amount*p, price = amount unchanged.
//   - user pays VAT, VAT not included: price = amount/(1-p),
//     vat = price - amount.
func Compute(plan *domain.Plan, vatPercent decimal.Decimal, userPaysVAT bool) Pricing {
	result := Pricing{
		Price: make(map[string]decimal.Decimal, len(plan.Price)),
		VAT:   make(map[string]decimal.Decimal, len(plan.Price)),
	}

	one := decimal.NewFromInt(1)
	for timeUnit, amount := range plan.Price {
		var price, vat decimal.Decimal
		switch {
		case !userPaysVAT:
			vat = decimal.Zero
			if plan.VATIncluded {
				price = amount.Mul(one.Sub(vatPercent))
			} else {
				price = amount
			}
		case plan.VATIncluded:
			vat = amount.Mul(vatPercent)
			price = amount
		default:
			price = amount.Div(one.Sub(vatPercent))
			vat = price.Sub(amount)
		}
		result.Price[timeUnit] = price.Round(3)
		result.VAT[timeUnit] = vat.Round(3)
	}
	return result
}
