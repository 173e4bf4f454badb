// Package store declares the data source contracts consumed by the engine.
// Implementations live in store/postgres and store/fixture.
package store

import (
	"context"
	"time"

	"github.com/spigell/partner-engine/internal/domain"
)

// Applications is read by the vetting pipeline.
type Applications interface {
	GetApplication(ctx context.Context, id string) (*domain.Application, error)
	// HasDuplicateApplication looks for applications with the same e-mail or a
	// fuzzy-matching company name, excluding excludeID.
	HasDuplicateApplication(ctx context.Context, email, companyName, excludeID string) (bool, error)
	SaveVettingResult(ctx context.Context, result *domain.VettingResult) error
}

// Partners is read by the ranking engine.
type Partners interface {
	GetServiceRequest(ctx context.Context, id string) (*domain.ServiceRequest, error)
	// ListPartnersByCategory returns approved partners whose categories contain category.
	ListPartnersByCategory(ctx context.Context, category string) ([]domain.Partner, error)
	// ExcludedPartnerIDs returns partners holding a pending or submitted bid, or an
	// invited recommendation, for the request. Pending recommendations do not exclude.
	ExcludedPartnerIDs(ctx context.Context, requestID string) ([]string, error)
	ClientEngagements(ctx context.Context, clientID string) ([]domain.Engagement, error)
}

// Outreach is written by the orchestrator.
type Outreach interface {
	// UpsertRecommendations never downgrades an invited recommendation.
	UpsertRecommendations(ctx context.Context, recs []domain.Recommendation) error
	// MarkInvited flags existing recommendations of the request as invited.
	MarkInvited(ctx context.Context, requestID string, partnerIDs []string) error
	// EnableBidding sets the deadline only when bidding is not yet enabled.
	EnableBidding(ctx context.Context, requestID string, deadline time.Time) error
	PartnerContact(ctx context.Context, partnerID string) (*domain.Contact, error)
	InsertNotification(ctx context.Context, n *domain.Notification) error
	AppendTimeline(ctx context.Context, entry *domain.TimelineEntry) error
	InsertMatchingLog(ctx context.Context, log *domain.MatchingLog) error
}

// Store is the full data source.
type Store interface {
	Applications
	Partners
	Outreach
	Close()
}
