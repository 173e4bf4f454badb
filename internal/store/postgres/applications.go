package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/partner-engine/internal/domain"
)

func (db *DB) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	var app domain.Application
	var website *string
	err := db.Pool.QueryRow(ctx, `
        SELECT id, company_name, contact_email, website, categories, years_experience,
               description, notable_clients, coverage_regions
        FROM partner_applications
        WHERE id = $1
    `, id).Scan(&app.ID, &app.CompanyName, &app.ContactEmail, &website, &app.Categories,
		&app.YearsExperience, &app.Description, &app.NotableClients, &app.CoverageRegions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("application %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	if website != nil {
		app.Website = *website
	}
	return &app, nil
}

// HasDuplicateApplication matches names by plain substring containment in
// either direction. strpos keeps % and _ in names literal.
func (db *DB) HasDuplicateApplication(ctx context.Context, email, companyName, excludeID string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM partner_applications
            WHERE id <> $3
              AND (($1 <> '' AND lower(contact_email) = lower($1))
                   OR ($2 <> '' AND btrim(company_name) <> ''
                       AND (strpos(lower(btrim(company_name)), lower($2)) > 0
                            OR strpos(lower($2), lower(btrim(company_name))) > 0)))
        )
    `, strings.TrimSpace(email), strings.TrimSpace(companyName), excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("duplicate application lookup: %w", err)
	}
	return exists, nil
}

func (db *DB) SaveVettingResult(ctx context.Context, r *domain.VettingResult) error {
	checks, err := json.Marshal(r.VerificationChecks)
	if err != nil {
		return fmt.Errorf("marshal verification checks: %w", err)
	}
	indicators, err := json.Marshal(r.RiskIndicators)
	if err != nil {
		return fmt.Errorf("marshal risk indicators: %w", err)
	}
	items, err := json.Marshal(r.AutoVettingItems)
	if err != nil {
		return fmt.Errorf("marshal auto vetting items: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
        INSERT INTO vetting_results (application_id, overall_score, risk_level, verification_checks,
            risk_indicators, recommendation, recommendation_reason, auto_vetting_items,
            processing_time_ms, vetted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, r.ApplicationID, r.OverallScore, string(r.RiskLevel), checks, indicators,
		string(r.Recommendation), r.RecommendationReason, items, r.ProcessingTimeMS, r.VettedAt)
	if err != nil {
		return fmt.Errorf("insert vetting result: %w", err)
	}
	return nil
}
