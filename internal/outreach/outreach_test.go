package outreach

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/notify"
	"github.com/spigell/partner-engine/internal/store/fixture"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type flakyChannel struct {
	name   string
	failOn map[string]bool
	panics map[string]bool

	mu   sync.Mutex
	sent []notify.Message
}

func (c *flakyChannel) Name() string { return c.name }

func (c *flakyChannel) Send(_ context.Context, msg notify.Message) error {
	recipient := msg.UserID
	if c.name == "email" {
		recipient = msg.Email
	}
	if c.panics[recipient] {
		panic("channel exploded")
	}
	if c.failOn[recipient] {
		return errors.New("channel unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

type failingRecommendations struct {
	*fixture.Store
}

func (failingRecommendations) UpsertRecommendations(context.Context, []domain.Recommendation) error {
	return errors.New("deadlock detected")
}

func shortlist(ids ...string) []domain.Match {
	out := make([]domain.Match, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.Match{PartnerID: id, CompanyName: "Partner " + id, Score: 90 - i*5, Reasons: []string{"Specializes in aviation"}, Confidence: 0.6})
	}
	return out
}

func newStore(req domain.ServiceRequest, partnerIDs ...string) *fixture.Store {
	contacts := make(map[string]domain.Contact, len(partnerIDs))
	for _, id := range partnerIDs {
		contacts[id] = domain.Contact{UserID: "user-" + id}
	}
	return fixture.New(fixture.Data{Requests: []domain.ServiceRequest{req}, Contacts: contacts})
}

func newOrchestrator(st *fixture.Store, opts Options) *Orchestrator {
	opts.Logger = zap.NewNop()
	o := New(st, opts)
	o.now = func() time.Time { return fixedNow }
	return o
}

func TestExecuteToleratesSinglePartnerFailure(t *testing.T) {
	req := domain.ServiceRequest{ID: "req-1", ClientID: "client-1", Category: "aviation", Title: "Jet to Nice"}
	ids := []string{"p-1", "p-2", "p-3", "p-4", "p-5"}
	st := newStore(req, ids...)

	inApp := &flakyChannel{name: "in_app", failOn: map[string]bool{"user-p-3": true}}
	o := newOrchestrator(st, Options{InApp: inApp})

	report := o.Execute(context.Background(), Run{
		Request:             &req,
		Matches:             shortlist(ids...),
		CandidatesEvaluated: 7,
		Outreach:            true,
		StartedAt:           time.Now(),
	})

	if report.Succeeded != 4 || report.Failed != 1 {
		t.Fatalf("expected 4 successes and 1 failure, got %+v", report)
	}
	if got := report.Attempts[2]; got.PartnerID != "p-3" || got.Success || got.Method != domain.MethodFailed {
		t.Fatalf("unexpected failed attempt: %+v", got)
	}
	for i, a := range report.Attempts {
		if a.PartnerID != ids[i] {
			t.Fatalf("expected attempts in shortlist order, got %+v", report.Attempts)
		}
		if i != 2 && a.Method != domain.MethodInApp {
			t.Fatalf("expected in-app method, got %+v", a)
		}
	}

	recs := st.Recommendations()
	if len(recs) != 5 {
		t.Fatalf("expected 5 recommendations, got %d", len(recs))
	}
	for _, r := range recs {
		want := domain.RecommendationInvited
		if r.PartnerID == "p-3" {
			want = domain.RecommendationPending
		}
		if r.Status != want || r.RequestID != "req-1" {
			t.Fatalf("expected %s recommendation, got %+v", want, r)
		}
	}

	updated, _ := st.Request("req-1")
	if !updated.BiddingEnabled || updated.BiddingDeadline == nil || !updated.BiddingDeadline.Equal(fixedNow.Add(48*time.Hour)) {
		t.Fatalf("expected bidding enabled with 48h deadline, got %+v", updated)
	}

	timeline := st.Timeline()
	if len(timeline) != 1 || timeline[0].Message != "Matched 5 partners, top score 90" {
		t.Fatalf("unexpected timeline: %+v", timeline)
	}

	logs := st.MatchingLogs()
	if len(logs) != 1 {
		t.Fatalf("expected one matching log, got %d", len(logs))
	}
	entry := logs[0]
	if entry.CandidatesEvaluated != 7 || entry.MatchesFound != 5 || !entry.OutreachSent || len(entry.Outcomes) != 5 || entry.Category != "aviation" {
		t.Fatalf("unexpected matching log: %+v", entry)
	}
}

func TestExecuteKeepsExistingDeadline(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	req := domain.ServiceRequest{ID: "req-2", Category: "yachts", BiddingEnabled: true, BiddingDeadline: &deadline}
	st := newStore(req, "p-1")
	o := newOrchestrator(st, Options{InApp: &flakyChannel{name: "in_app"}})

	for range 2 {
		o.Execute(context.Background(), Run{Request: &req, Matches: shortlist("p-1"), Outreach: true, StartedAt: time.Now()})
	}

	updated, _ := st.Request("req-2")
	if !updated.BiddingDeadline.Equal(deadline) {
		t.Fatalf("expected deadline untouched, got %s", updated.BiddingDeadline)
	}
	if got := len(st.Recommendations()); got != 1 {
		t.Fatalf("expected idempotent upsert to keep 1 recommendation, got %d", got)
	}
}

func TestExecuteContinuesWhenRecommendationsFail(t *testing.T) {
	req := domain.ServiceRequest{ID: "req-3", Category: "villas"}
	base := newStore(req, "p-1", "p-2")
	inApp := &flakyChannel{name: "in_app"}

	o := New(failingRecommendations{Store: base}, Options{InApp: inApp, Logger: zap.NewNop()})
	report := o.Execute(context.Background(), Run{Request: &req, Matches: shortlist("p-1", "p-2"), Outreach: true, StartedAt: time.Now()})

	if report.Succeeded != 2 || len(inApp.sent) != 2 {
		t.Fatalf("expected outreach to proceed, got %+v", report)
	}
	if len(base.MatchingLogs()) != 1 {
		t.Fatalf("expected matching log to be written")
	}
}

func TestExecuteChannelMethods(t *testing.T) {
	req := domain.ServiceRequest{ID: "req-4", Category: "aviation"}
	st := fixture.New(fixture.Data{
		Requests: []domain.ServiceRequest{req},
		Contacts: map[string]domain.Contact{
			"both":        {UserID: "u-both", Email: "both@partner.com"},
			"email-only":  {Email: "mail@partner.com"},
			"in-app-down": {UserID: "u-down", Email: "down@partner.com"},
			"nobody":      {},
			"exploding":   {UserID: "u-boom"},
		},
	})

	inApp := &flakyChannel{name: "in_app", failOn: map[string]bool{"u-down": true}, panics: map[string]bool{"u-boom": true}}
	email := &flakyChannel{name: "email"}
	o := newOrchestrator(st, Options{InApp: inApp, Email: email})

	report := o.Execute(context.Background(), Run{
		Request:   &req,
		Matches:   shortlist("both", "email-only", "in-app-down", "nobody", "exploding", "unknown"),
		Outreach:  true,
		StartedAt: time.Now(),
	})

	want := []struct {
		method  domain.OutreachMethod
		success bool
	}{
		{domain.MethodInApp, true},
		{domain.MethodEmail, true},
		{domain.MethodEmail, true},
		{domain.MethodFailed, false},
		{domain.MethodFailed, false},
		{domain.MethodFailed, false},
	}
	for i, w := range want {
		got := report.Attempts[i]
		if got.Method != w.method || got.Success != w.success {
			t.Fatalf("attempt %s: expected %s/%v, got %+v", got.PartnerID, w.method, w.success, got)
		}
	}
	if report.Attempts[2].Error == "" {
		t.Fatalf("expected in-app failure to be recorded even though e-mail succeeded")
	}
	if len(email.sent) != 3 {
		t.Fatalf("expected 3 e-mails, got %d", len(email.sent))
	}
}

func TestExecuteWithoutOutreach(t *testing.T) {
	req := domain.ServiceRequest{ID: "req-5", Category: "aviation"}
	st := newStore(req, "p-1")
	inApp := &flakyChannel{name: "in_app"}
	o := newOrchestrator(st, Options{InApp: inApp})

	report := o.Execute(context.Background(), Run{Request: &req, Matches: shortlist("p-1"), Outreach: false, StartedAt: time.Now()})

	if report.Sent || len(report.Attempts) != 0 || len(inApp.sent) != 0 {
		t.Fatalf("expected no outreach, got %+v", report)
	}
	if len(st.Timeline()) != 0 {
		t.Fatalf("expected no timeline entry")
	}
	if updated, _ := st.Request("req-5"); updated.BiddingEnabled {
		t.Fatalf("expected bidding to stay disabled")
	}
	if len(st.Recommendations()) != 1 {
		t.Fatalf("expected recommendations to be persisted regardless")
	}
	logs := st.MatchingLogs()
	if len(logs) != 1 || logs[0].OutreachSent {
		t.Fatalf("unexpected matching log: %+v", logs)
	}
}
