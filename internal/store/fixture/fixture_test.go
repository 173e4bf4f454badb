package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spigell/partner-engine/internal/domain"
)

const sample = `
applications:
  - id: app-1
    company_name: Skyline Charters
    contact_email: ops@skyline.aero
  - id: app-2
    company_name: Skyline Charters International
    contact_email: hello@other.example
partners:
  - id: p-1
    company_name: Skyline Charters
    categories: [aviation, yachts]
    rating: 4.9
    status: approved
    min_budget: 5000
    max_budget: 60000
  - id: p-2
    company_name: Grounded Co
    categories: [aviation]
    status: suspended
contacts:
  p-1:
    user_id: u-1
    email: ops@skyline.aero
requests:
  - id: r-1
    client_id: c-1
    category: aviation
bids:
  - request_id: r-1
    partner_id: p-9
    status: submitted
  - request_id: r-1
    partner_id: p-8
    status: withdrawn
`

func loadSample(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return s
}

func TestLoadDecodesFixtureSet(t *testing.T) {
	s := loadSample(t)
	ctx := context.Background()

	partners, err := s.ListPartnersByCategory(ctx, "Aviation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(partners) != 1 || partners[0].ID != "p-1" {
		t.Fatalf("expected only approved p-1, got %+v", partners)
	}
	if partners[0].MaxBudget == nil || *partners[0].MaxBudget != 60000 {
		t.Fatalf("expected max budget to decode, got %v", partners[0].MaxBudget)
	}

	contact, err := s.PartnerContact(ctx, "p-1")
	if err != nil || contact.UserID != "u-1" {
		t.Fatalf("unexpected contact %+v, err %v", contact, err)
	}

	if _, err := s.GetServiceRequest(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateApplicationLookup(t *testing.T) {
	s := loadSample(t)
	ctx := context.Background()

	dup, err := s.HasDuplicateApplication(ctx, "new@fresh.example", "skyline charters", "app-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup {
		t.Fatalf("expected fuzzy company name match against app-2")
	}

	dup, _ = s.HasDuplicateApplication(ctx, "OPS@skyline.aero", "Unrelated", "app-2")
	if !dup {
		t.Fatalf("expected e-mail match against app-1")
	}

	dup, _ = s.HasDuplicateApplication(ctx, "x@y.example", "Nothing Alike", "app-1")
	if dup {
		t.Fatalf("expected no duplicate")
	}
}

func TestExcludedPartnersIncludeBidsAndInvitedRecommendations(t *testing.T) {
	s := loadSample(t)
	ctx := context.Background()

	if err := s.UpsertRecommendations(ctx, []domain.Recommendation{
		{RequestID: "r-1", PartnerID: "p-1", Score: 80, Status: domain.RecommendationPending},
		{RequestID: "r-1", PartnerID: "p-1", Score: 81, Status: domain.RecommendationPending},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if recs := s.Recommendations(); len(recs) != 1 || recs[0].Score != 81 {
		t.Fatalf("expected single upserted recommendation, got %+v", recs)
	}

	ids, err := s.ExcludedPartnerIDs(ctx, "r-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "p-9" {
		t.Fatalf("expected pending recommendation not to exclude, got %v", ids)
	}

	if err := s.MarkInvited(ctx, "r-1", []string{"p-1", "unknown"}); err != nil {
		t.Fatalf("mark invited: %v", err)
	}
	ids, err = s.ExcludedPartnerIDs(ctx, "r-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "p-9" || ids[1] != "p-1" {
		t.Fatalf("unexpected excluded ids: %v", ids)
	}

	// a later upsert refreshes the score but keeps the invitation
	if err := s.UpsertRecommendations(ctx, []domain.Recommendation{
		{RequestID: "r-1", PartnerID: "p-1", Score: 70, Status: domain.RecommendationPending},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	recs := s.Recommendations()
	if len(recs) != 1 || recs[0].Score != 70 || recs[0].Status != domain.RecommendationInvited {
		t.Fatalf("expected invited status to survive upsert, got %+v", recs)
	}
}

func TestEnableBiddingKeepsExistingDeadline(t *testing.T) {
	s := loadSample(t)
	ctx := context.Background()

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.EnableBidding(ctx, "r-1", first); err != nil {
		t.Fatalf("enable bidding: %v", err)
	}
	if err := s.EnableBidding(ctx, "r-1", first.Add(time.Hour)); err != nil {
		t.Fatalf("enable bidding again: %v", err)
	}

	req, _ := s.Request("r-1")
	if !req.BiddingEnabled || req.BiddingDeadline == nil || !req.BiddingDeadline.Equal(first) {
		t.Fatalf("expected first deadline to stick, got %+v", req)
	}
}
