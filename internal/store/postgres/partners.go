package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/partner-engine/internal/domain"
)

func (db *DB) GetServiceRequest(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	var req domain.ServiceRequest
	var location *string
	err := db.Pool.QueryRow(ctx, `
        SELECT id, client_id, category, title, description, budget_min, budget_max,
               preferred_location, bidding_enabled, bidding_deadline
        FROM service_requests
        WHERE id = $1
    `, id).Scan(&req.ID, &req.ClientID, &req.Category, &req.Title, &req.Description,
		&req.BudgetMin, &req.BudgetMax, &location, &req.BiddingEnabled, &req.BiddingDeadline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("service request %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get service request: %w", err)
	}
	if location != nil {
		req.PreferredLocation = *location
	}
	return &req, nil
}

// ListPartnersByCategory orders by id so the ranking input is stable across runs.
func (db *DB) ListPartnersByCategory(ctx context.Context, category string) ([]domain.Partner, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, company_name, categories, service_regions, rating, response_rate,
               total_bookings, min_budget, max_budget, status
        FROM partners
        WHERE status = 'approved'
          AND EXISTS (SELECT 1 FROM unnest(categories) c WHERE lower(c) = lower($1))
        ORDER BY id
    `, category)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}

	partners, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Partner, error) {
		var p domain.Partner
		var status string
		err := row.Scan(&p.ID, &p.CompanyName, &p.Categories, &p.ServiceRegions, &p.Rating,
			&p.ResponseRate, &p.TotalBookings, &p.MinBudget, &p.MaxBudget, &status)
		p.Status = domain.PartnerStatus(status)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan partners: %w", err)
	}
	return partners, nil
}

func (db *DB) ExcludedPartnerIDs(ctx context.Context, requestID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT partner_id FROM bids
        WHERE request_id = $1 AND status IN ('pending', 'submitted')
        UNION
        SELECT partner_id FROM partner_recommendations
        WHERE request_id = $1 AND status = 'invited'
    `, requestID)
	if err != nil {
		return nil, fmt.Errorf("list excluded partners: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan excluded partners: %w", err)
	}
	return ids, nil
}

func (db *DB) ClientEngagements(ctx context.Context, clientID string) ([]domain.Engagement, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT client_id, partner_id, status, COALESCE(rating, 0)
        FROM client_engagements
        WHERE client_id = $1
        ORDER BY id
    `, clientID)
	if err != nil {
		return nil, fmt.Errorf("list client engagements: %w", err)
	}

	engagements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Engagement, error) {
		var e domain.Engagement
		err := row.Scan(&e.ClientID, &e.PartnerID, &e.Status, &e.Rating)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan client engagements: %w", err)
	}
	return engagements, nil
}
