package matching

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/store/fixture"
)

func ids(pool []domain.Partner) []string {
	out := make([]string, 0, len(pool))
	for _, p := range pool {
		out = append(out, p.ID)
	}
	return out
}

func TestRunFilters(t *testing.T) {
	req := &domain.ServiceRequest{ID: "req-1", Category: "aviation"}
	st := fixture.New(fixture.Data{
		Requests: []domain.ServiceRequest{*req},
		Bids: []fixture.Bid{
			{RequestID: "req-1", PartnerID: "bidding", Status: "pending"},
			{RequestID: "req-1", PartnerID: "withdrawn", Status: "withdrawn"},
			{RequestID: "other", PartnerID: "elsewhere", Status: "submitted"},
		},
	})

	pool := []domain.Partner{
		{ID: "ok", Categories: []string{"aviation"}, Status: domain.PartnerApproved},
		{ID: "pending", Categories: []string{"aviation"}, Status: domain.PartnerPending},
		{ID: "bidding", Categories: []string{"aviation"}, Status: domain.PartnerApproved},
		{ID: "withdrawn", Categories: []string{"AVIATION"}, Status: domain.PartnerApproved},
		{ID: "elsewhere", Categories: []string{"aviation"}, Status: domain.PartnerApproved},
		{ID: "yachts", Categories: []string{"yachts", "aviation charters"}, Status: domain.PartnerApproved},
	}

	got, err := RunFilters(context.Background(), Deps{Request: req, Partners: st, Logger: zap.NewNop()}, DefaultFilters(), pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"ok", "withdrawn", "elsewhere"}
	if !slices.Equal(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestRunFiltersSkipsDisabled(t *testing.T) {
	req := &domain.ServiceRequest{ID: "req-1", Category: "aviation"}
	pool := []domain.Partner{{ID: "pending", Categories: []string{"aviation"}, Status: domain.PartnerPending}}

	steps := []Filter{NewApproved(), NewCategory()}
	DisableByName(steps, "approved", "testing")

	got, err := RunFilters(context.Background(), Deps{Request: req}, steps, pool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected disabled filter to be skipped, got %v", ids(got))
	}

	statuses := Describe(steps)
	if len(statuses) != 2 || statuses[0].Enabled || !statuses[1].Enabled {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}

type brokenPartners struct {
	*fixture.Store
}

func (brokenPartners) ExcludedPartnerIDs(context.Context, string) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestExistingBidsFilterError(t *testing.T) {
	req := &domain.ServiceRequest{ID: "req-1", Category: "aviation"}
	deps := Deps{Request: req, Partners: brokenPartners{Store: fixture.New(fixture.Data{})}}

	if _, err := RunFilters(context.Background(), deps, []Filter{NewExistingBids()}, nil); err == nil {
		t.Fatalf("expected lookup error to surface")
	}
}

func TestExistingBidsStatus(t *testing.T) {
	st := fixture.New(fixture.Data{Bids: []fixture.Bid{{RequestID: "r", PartnerID: "p", Status: "submitted"}}})
	f := NewExistingBids()

	if _, _, err := f.Apply(context.Background(), Deps{Request: &domain.ServiceRequest{ID: "r"}, Partners: st}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := f.(statusProvider).Status()
	if status.Details["excluded_ids"] != "1" {
		t.Fatalf("unexpected status: %+v", status)
	}
}
