package matching

import (
	"slices"
	"testing"

	"github.com/spigell/partner-engine/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func aviationRequest() *domain.ServiceRequest {
	return &domain.ServiceRequest{
		ID:        "req-c",
		ClientID:  "client-1",
		Category:  "aviation",
		Title:     "Private jet London to Nice",
		BudgetMin: ptr(10000),
		BudgetMax: ptr(50000),
	}
}

func partnerP(id string) domain.Partner {
	return domain.Partner{
		ID:             id,
		CompanyName:    "Skyline " + id,
		Categories:     []string{"Aviation", "yachts"},
		ServiceRegions: []string{"Dubai"},
		Rating:         4.9,
		ResponseRate:   97,
		TotalBookings:  120,
		MinBudget:      ptr(5000),
		MaxBudget:      ptr(60000),
		Status:         domain.PartnerApproved,
	}
}

func TestScorePartnerWithoutHistory(t *testing.T) {
	p := partnerP("p")
	m := ScorePartner(aviationRequest(), &p, false)

	if m.Score != 80 {
		t.Fatalf("expected 35 + 20 + 12 + 8 + 5 = 80, got %d (%v)", m.Score, m.Reasons)
	}
	want := []string{
		"Specializes in aviation",
		"Budget range fully covered",
		"Exceptional rating (4.9)",
		"Highly responsive (97%)",
		"Extensive experience (120 bookings)",
	}
	if !slices.Equal(m.Reasons, want) {
		t.Fatalf("expected reasons %v, got %v", want, m.Reasons)
	}
	if m.Confidence != 0.6 {
		t.Fatalf("expected confidence 0.6, got %v", m.Confidence)
	}
}

func TestScorePartnerWithClientHistory(t *testing.T) {
	q := partnerP("q")
	m := ScorePartner(aviationRequest(), &q, true)

	if m.Score != 95 {
		t.Fatalf("expected 80 + 15 = 95, got %d", m.Score)
	}
	if m.Reasons[len(m.Reasons)-1] != "Previously rated highly by this client" {
		t.Fatalf("expected history reason last, got %v", m.Reasons)
	}
	if m.Confidence != 0.98 {
		t.Fatalf("expected confidence 0.98, got %v", m.Confidence)
	}
}

func TestScorePartnerClampsAt100(t *testing.T) {
	req := aviationRequest()
	req.PreferredLocation = "nice"
	p := partnerP("p")
	p.ServiceRegions = []string{"Côte d'Azur, Nice"}

	m := ScorePartner(req, &p, true)
	if m.Score != 100 {
		t.Fatalf("expected clamp to 100, got %d", m.Score)
	}
	if m.Confidence != 1 {
		t.Fatalf("expected confidence 1, got %v", m.Confidence)
	}
}

func TestBudgetFit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reqMin  *float64
		reqMax  *float64
		partMin *float64
		partMax *float64
		expect  int
	}{
		{name: "no request budget", expect: 8},
		{name: "only one request bound", reqMin: ptr(1000), expect: 0},
		{name: "contained", reqMin: ptr(10), reqMax: ptr(20), partMin: ptr(5), partMax: ptr(25), expect: 20},
		{name: "open partner range", reqMin: ptr(10), reqMax: ptr(20), expect: 20},
		{name: "partial overlap", reqMin: ptr(10), reqMax: ptr(20), partMin: ptr(15), partMax: ptr(40), expect: 12},
		{name: "no overlap", reqMin: ptr(10), reqMax: ptr(20), partMin: ptr(30), expect: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := &domain.ServiceRequest{BudgetMin: tt.reqMin, BudgetMax: tt.reqMax}
			p := &domain.Partner{MinBudget: tt.partMin, MaxBudget: tt.partMax}
			if got, _ := budgetFit(req, p); got != tt.expect {
				t.Fatalf("expected %d, got %d", tt.expect, got)
			}
		})
	}
}

func TestRegionMatch(t *testing.T) {
	if _, ok := regionMatch("Monaco", []string{"French Riviera & MONACO"}); !ok {
		t.Fatalf("expected region containing location to match")
	}
	if _, ok := regionMatch("Paris, France", []string{"paris"}); !ok {
		t.Fatalf("expected location containing region to match")
	}
	if _, ok := regionMatch("", []string{"paris"}); ok {
		t.Fatalf("expected empty location not to match")
	}
}

func TestRankDiscardsLowScoresAndKeepsOrder(t *testing.T) {
	req := &domain.ServiceRequest{ID: "req", Category: "villas"}

	weak := domain.Partner{ID: "weak", Categories: []string{"villas"}, Status: domain.PartnerApproved, Rating: 0}
	// 35 category + 8 flexible budget + 6 rating = 49
	tieA := domain.Partner{ID: "tie-a", Categories: []string{"villas"}, Rating: 4.2}
	tieB := domain.Partner{ID: "tie-b", Categories: []string{"villas"}, Rating: 4.0}
	best := domain.Partner{ID: "best", Categories: []string{"villas"}, Rating: 4.9, ResponseRate: 99, TotalBookings: 300}
	// 8 flexible budget + 6 rating, no category credit
	offCategory := domain.Partner{ID: "off", Categories: []string{"yachts"}, Rating: 4.0}

	pool := []domain.Partner{tieA, weak, offCategory, best, tieB}
	got := Rank(req, pool, nil, 10)

	ids := make([]string, 0, len(got))
	for _, m := range got {
		if m.Score < MinScore || m.Score > 100 {
			t.Fatalf("score out of bounds: %+v", m)
		}
		ids = append(ids, m.PartnerID)
	}

	want := []string{"best", "tie-a", "tie-b", "weak"}
	if !slices.Equal(ids, want) {
		t.Fatalf("expected order %v, got %v", want, ids)
	}

	for range 5 {
		again := Rank(req, pool, nil, 10)
		if !slices.EqualFunc(again, got, func(a, b domain.Match) bool { return a.PartnerID == b.PartnerID && a.Score == b.Score }) {
			t.Fatalf("expected deterministic ranking")
		}
	}
}

func TestRankDropsBelowThreshold(t *testing.T) {
	req := &domain.ServiceRequest{ID: "req", Category: "villas", BudgetMin: ptr(1)}
	// only a single budget bound and nothing else: no category, no quality terms
	pool := []domain.Partner{{ID: "nobody", Categories: []string{"jets"}, Rating: 4.9}}

	if got := Rank(req, pool, nil, 5); len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestRankLimitsShortlist(t *testing.T) {
	req := aviationRequest()
	pool := make([]domain.Partner, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		pool = append(pool, partnerP(id))
	}

	if got := Rank(req, pool, nil, 0); len(got) != DefaultMaxPartners {
		t.Fatalf("expected default shortlist of %d, got %d", DefaultMaxPartners, len(got))
	}
	if got := Rank(req, pool, nil, 3); len(got) != 3 || got[0].PartnerID != "a" || got[2].PartnerID != "c" {
		t.Fatalf("unexpected shortlist: %+v", got)
	}
}

func TestNewHistory(t *testing.T) {
	h := NewHistory([]domain.Engagement{
		{PartnerID: "good", Status: "completed", Rating: 5},
		{PartnerID: "meh", Status: "completed", Rating: 3.5},
		{PartnerID: "open", Status: "in_progress", Rating: 5},
	})

	if !h.Has("good") || h.Has("meh") || h.Has("open") {
		t.Fatalf("unexpected history: %v", h)
	}
	if History(nil).Has("good") {
		t.Fatalf("nil history must be empty")
	}
}
