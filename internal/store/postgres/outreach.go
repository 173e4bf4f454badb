package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/partner-engine/internal/domain"
)

// UpsertRecommendations is keyed on (request_id, partner_id) so re-running a
// match for the same request does not duplicate rows.
func (db *DB) UpsertRecommendations(ctx context.Context, recs []domain.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		reasons, err := json.Marshal(rec.Reasons)
		if err != nil {
			return fmt.Errorf("marshal reasons: %w", err)
		}
		batch.Queue(`
            INSERT INTO partner_recommendations (request_id, partner_id, score, reasons, confidence, status)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (request_id, partner_id) DO UPDATE
            SET score = EXCLUDED.score, reasons = EXCLUDED.reasons,
                confidence = EXCLUDED.confidence, updated_at = now()
        `, rec.RequestID, rec.PartnerID, rec.Score, reasons, rec.Confidence, rec.Status)
	}

	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert recommendations: %w", err)
	}
	return nil
}

func (db *DB) MarkInvited(ctx context.Context, requestID string, partnerIDs []string) error {
	if len(partnerIDs) == 0 {
		return nil
	}

	_, err := db.Pool.Exec(ctx, `
        UPDATE partner_recommendations
        SET status = 'invited', updated_at = now()
        WHERE request_id = $1 AND partner_id = ANY($2)
    `, requestID, partnerIDs)
	if err != nil {
		return fmt.Errorf("mark recommendations invited: %w", err)
	}
	return nil
}

func (db *DB) EnableBidding(ctx context.Context, requestID string, deadline time.Time) error {
	_, err := db.Pool.Exec(ctx, `
        UPDATE service_requests
        SET bidding_enabled = true, bidding_deadline = $2
        WHERE id = $1 AND NOT bidding_enabled
    `, requestID, deadline)
	if err != nil {
		return fmt.Errorf("enable bidding: %w", err)
	}
	return nil
}

func (db *DB) PartnerContact(ctx context.Context, partnerID string) (*domain.Contact, error) {
	var contact domain.Contact
	err := db.Pool.QueryRow(ctx, `
        SELECT COALESCE(user_id, ''), COALESCE(contact_email, '')
        FROM partners
        WHERE id = $1
    `, partnerID).Scan(&contact.UserID, &contact.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contact for partner %s: %w", partnerID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get partner contact: %w", err)
	}
	return &contact, nil
}

func (db *DB) InsertNotification(ctx context.Context, n *domain.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO notifications (id, user_id, kind, title, body, priority, data, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, n.ID, n.UserID, n.Kind, n.Title, n.Body, n.Priority, data, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (db *DB) AppendTimeline(ctx context.Context, e *domain.TimelineEntry) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO request_timeline (request_id, kind, message, created_at)
        VALUES ($1, $2, $3, $4)
    `, e.RequestID, e.Kind, e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	return nil
}

func (db *DB) InsertMatchingLog(ctx context.Context, l *domain.MatchingLog) error {
	outcomes, err := json.Marshal(l.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO matching_logs (id, request_id, category, candidates_evaluated, matches_found,
            outreach_sent, outcomes, processing_time_ms, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, l.ID, l.RequestID, l.Category, l.CandidatesEvaluated, l.MatchesFound,
		l.OutreachSent, outcomes, l.ProcessingTimeMS, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert matching log: %w", err)
	}
	return nil
}
