package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pentico/subscription-service/internal/domain"
)

// PlanRepository handles persistence for plans and their associated services.
type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, reference, name, price, vat_included, allow_multiple, position, date_created, date_updated`

func (r *PlanRepository) List(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY position, reference`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) FindByID(ctx context.Context, id string) (*domain.Plan, error) {
	return r.findOne(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
}

func (r *PlanRepository) FindByReference(ctx context.Context, reference string) (*domain.Plan, error) {
	return r.findOne(ctx, `SELECT `+planColumns+` FROM plans WHERE reference = $1`, reference)
}

// FindByIDs returns the plans for the given internal ids, in no particular
// order. Unknown ids are skipped, not an error.
func (r *PlanRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Plan, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) findOne(ctx context.Context, query string, arg any) (*domain.Plan, error) {
	plan, err := scanPlan(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return plan, nil
}

func (r *PlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	price, err := json.Marshal(plan.Price)
	if err != nil {
		return fmt.Errorf("failed to marshal plan price: %w", err)
	}
	query := `
		INSERT INTO plans (id, reference, name, price, vat_included, allow_multiple, position, date_created, date_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		plan.ID, plan.Reference, plan.Name, price,
		plan.VATIncluded, plan.AllowMultiple, plan.Position,
		plan.DateCreated, plan.DateUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return r.linkServices(ctx, plan)
}

func (r *PlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	price, err := json.Marshal(plan.Price)
	if err != nil {
		return fmt.Errorf("failed to marshal plan price: %w", err)
	}
	query := `
		UPDATE plans
		SET name = $2, price = $3, vat_included = $4, allow_multiple = $5, position = $6, date_updated = NOW()
		WHERE reference = $1
	`
	tag, err := r.db.Exec(ctx, query,
		plan.Reference, plan.Name, price, plan.VATIncluded, plan.AllowMultiple, plan.Position,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plan %s not found", plan.Reference)
	}
	return nil
}

func (r *PlanRepository) DeleteByReference(ctx context.Context, reference string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM plans WHERE reference = $1`, reference)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plan %s not found", reference)
	}
	return nil
}

// PopulateServices loads the services linked to the plan.
func (r *PlanRepository) PopulateServices(ctx context.Context, plan *domain.Plan) error {
	query := `
		SELECT s.id, s.reference, s.name, s.description
		FROM services s
		JOIN plan_services ps ON ps.service_id = s.id
		WHERE ps.plan_id = $1
		ORDER BY s.reference
	`
	rows, err := r.db.Query(ctx, query, plan.ID)
	if err != nil {
		return fmt.Errorf("failed to load plan services: %w", err)
	}
	defer rows.Close()

	plan.Services = nil
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.Reference, &svc.Name, &svc.Description); err != nil {
			return fmt.Errorf("failed to scan service: %w", err)
		}
		plan.Services = append(plan.Services, svc)
	}
	return rows.Err()
}

// FindServicesByReferences translates service references to catalog entries.
func (r *PlanRepository) FindServicesByReferences(ctx context.Context, references []string) ([]domain.Service, error) {
	if len(references) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, reference, name, description FROM services WHERE reference = ANY($1)`, references)
	if err != nil {
		return nil, fmt.Errorf("failed to find services: %w", err)
	}
	defer rows.Close()

	var services []domain.Service
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.Reference, &svc.Name, &svc.Description); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (r *PlanRepository) linkServices(ctx context.Context, plan *domain.Plan) error {
	for _, svc := range plan.Services {
		_, err := r.db.Exec(ctx,
			`INSERT INTO plan_services (plan_id, service_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			plan.ID, svc.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to link plan service: %w", err)
		}
	}
	return nil
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var (
		plan  domain.Plan
		price []byte
	)
	err := row.Scan(
		&plan.ID, &plan.Reference, &plan.Name, &price,
		&plan.VATIncluded, &plan.AllowMultiple, &plan.Position,
		&plan.DateCreated, &plan.DateUpdated,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(price, &plan.Price); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan price: %w", err)
	}
	return &plan, nil
}
