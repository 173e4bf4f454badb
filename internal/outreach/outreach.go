// Package outreach persists shortlists and invites the shortlisted partners.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/logger"
	"github.com/spigell/partner-engine/internal/notify"
	"github.com/spigell/partner-engine/internal/store"
	"github.com/spigell/partner-engine/internal/utils"
)

const (
	// BiddingWindow is how long partners may bid once outreach starts.
	BiddingWindow = 48 * time.Hour

	defaultNotifyTimeout = 10 * time.Second
	maxParallelAttempts  = 8

	kindNewOpportunity  = "new_opportunity"
	kindPartnersMatched = "partners_matched"
)

var errNoIdentity = errors.New("partner has no notification identity")

// Options configure an Orchestrator. A nil Email channel disables e-mail.
type Options struct {
	InApp         notify.Channel
	Email         notify.Channel
	NotifyTimeout time.Duration
	Logger        *zap.Logger
}

// Orchestrator runs the write side of one matching run.
type Orchestrator struct {
	store         store.Outreach
	inApp         notify.Channel
	email         notify.Channel
	notifyTimeout time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func New(st store.Outreach, opts Options) *Orchestrator {
	if opts.InApp == nil {
		opts.InApp = notify.NewInApp(st)
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Orchestrator{
		store:         st,
		inApp:         opts.InApp,
		email:         opts.Email,
		notifyTimeout: opts.NotifyTimeout,
		logger:        opts.Logger,
		now:           time.Now,
	}
}

// Run is the input of one orchestration.
type Run struct {
	Request             *domain.ServiceRequest
	Matches             []domain.Match
	CandidatesEvaluated int
	Outreach            bool
	StartedAt           time.Time
}

// Report summarizes the outreach part of a run.
type Report struct {
	Sent      bool
	Attempts  []domain.OutreachAttempt
	Succeeded int
	Failed    int
}

// Execute never fails: every write is best-effort and logged. Recommendations
// are persisted before any partner is contacted.
func (o *Orchestrator) Execute(ctx context.Context, run Run) Report {
	req := run.Request
	log := logger.ForRequest(o.logger, req.ID)

	o.persistRecommendations(ctx, req.ID, run.Matches, log)

	report := Report{Attempts: []domain.OutreachAttempt{}}
	if run.Outreach && len(run.Matches) > 0 {
		report.Sent = true

		if !req.BiddingEnabled {
			deadline := o.now().UTC().Add(BiddingWindow)
			if err := o.store.EnableBidding(ctx, req.ID, deadline); err != nil {
				log.Error("failed to enable bidding", zap.Error(err))
			}
		}

		report.Attempts = o.dispatch(ctx, req, run.Matches, log)
		invited := make([]string, 0, len(report.Attempts))
		for _, a := range report.Attempts {
			if a.Success {
				report.Succeeded++
				invited = append(invited, a.PartnerID)
			} else {
				report.Failed++
			}
		}
		if len(invited) > 0 {
			if err := o.store.MarkInvited(ctx, req.ID, invited); err != nil {
				log.Error("failed to mark recommendations invited", zap.Error(err))
			}
		}

		o.appendTimeline(ctx, req, run.Matches, log)
	}

	entry := &domain.MatchingLog{
		ID:                  uuid.NewString(),
		RequestID:           req.ID,
		Category:            req.Category,
		CandidatesEvaluated: run.CandidatesEvaluated,
		MatchesFound:        len(run.Matches),
		OutreachSent:        report.Sent,
		Outcomes:            report.Attempts,
		ProcessingTimeMS:    utils.MillisSince(run.StartedAt),
		CreatedAt:           o.now().UTC(),
	}
	if err := o.store.InsertMatchingLog(ctx, entry); err != nil {
		log.Error("failed to write matching log", zap.Error(err))
	}

	log.Info("outreach run finished",
		zap.Int("matches", len(run.Matches)),
		zap.Bool("outreach", report.Sent),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)

	return report
}

func (o *Orchestrator) persistRecommendations(ctx context.Context, requestID string, matches []domain.Match, log *zap.Logger) {
	if len(matches) == 0 {
		return
	}

	recs := make([]domain.Recommendation, 0, len(matches))
	for _, m := range matches {
		recs = append(recs, domain.Recommendation{
			RequestID:  requestID,
			PartnerID:  m.PartnerID,
			Score:      m.Score,
			Reasons:    m.Reasons,
			Confidence: m.Confidence,
			Status:     domain.RecommendationPending,
		})
	}

	if err := o.store.UpsertRecommendations(ctx, recs); err != nil {
		log.Error("failed to persist recommendations, continuing with outreach", zap.Error(err))
	}
}

// dispatch contacts every partner independently. Outcomes keep shortlist order.
func (o *Orchestrator) dispatch(ctx context.Context, req *domain.ServiceRequest, matches []domain.Match, log *zap.Logger) []domain.OutreachAttempt {
	attempts := make([]domain.OutreachAttempt, len(matches))

	var g errgroup.Group
	g.SetLimit(maxParallelAttempts)
	for i, m := range matches {
		g.Go(func() error {
			attempts[i] = o.attempt(ctx, req, m, log.With(logger.Partner(m.PartnerID)))
			return nil
		})
	}
	_ = g.Wait()

	return attempts
}

func (o *Orchestrator) attempt(ctx context.Context, req *domain.ServiceRequest, m domain.Match, log *zap.Logger) (out domain.OutreachAttempt) {
	out = domain.OutreachAttempt{PartnerID: m.PartnerID, Method: domain.MethodFailed}

	defer func() {
		if r := recover(); r != nil {
			log.Error("outreach attempt panicked", zap.Any("panic", r))
			out = domain.OutreachAttempt{PartnerID: m.PartnerID, Method: domain.MethodFailed, Error: fmt.Sprint(r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, o.notifyTimeout)
	defer cancel()

	contact, err := o.store.PartnerContact(ctx, m.PartnerID)
	if err != nil {
		log.Warn("partner contact lookup failed", zap.Error(err))
		out.Error = err.Error()
		return out
	}
	if contact.UserID == "" && contact.Email == "" {
		out.Error = errNoIdentity.Error()
		return out
	}

	msg := invitation(req, m, contact)

	var errs []error
	inAppOK := false
	if contact.UserID != "" {
		if err := o.inApp.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.inApp.Name(), err))
		} else {
			inAppOK = true
		}
	}

	emailOK := false
	if o.email != nil && contact.Email != "" {
		if err := o.email.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.email.Name(), err))
		} else {
			emailOK = true
		}
	}

	switch {
	case inAppOK:
		out.Method = domain.MethodInApp
	case emailOK:
		out.Method = domain.MethodEmail
	}
	out.Success = inAppOK || emailOK

	if err := errors.Join(errs...); err != nil {
		out.Error = err.Error()
		log.Warn("outreach channel failed", zap.Bool("success", out.Success), zap.Error(err))
	}
	return out
}

func invitation(req *domain.ServiceRequest, m domain.Match, contact *domain.Contact) notify.Message {
	priority := notify.PriorityNormal
	if m.Score >= 80 {
		priority = notify.PriorityHigh
	}

	title := "New opportunity"
	if req.Title != "" {
		title = fmt.Sprintf("New opportunity: %s", req.Title)
	}

	return notify.Message{
		UserID:   contact.UserID,
		Email:    contact.Email,
		Kind:     kindNewOpportunity,
		Title:    title,
		Body:     fmt.Sprintf("You have been shortlisted for a %s request with a match score of %d. Submit your bid within %d hours.", req.Category, m.Score, int(BiddingWindow.Hours())),
		Priority: priority,
		Data: map[string]any{
			"request_id":  req.ID,
			"match_score": m.Score,
			"reasons":     m.Reasons,
		},
	}
}

func (o *Orchestrator) appendTimeline(ctx context.Context, req *domain.ServiceRequest, matches []domain.Match, log *zap.Logger) {
	top := 0
	for _, m := range matches {
		top = max(top, m.Score)
	}

	entry := &domain.TimelineEntry{
		RequestID: req.ID,
		Kind:      kindPartnersMatched,
		Message:   fmt.Sprintf("Matched %d partners, top score %d", len(matches), top),
		CreatedAt: o.now().UTC(),
	}
	if err := o.store.AppendTimeline(ctx, entry); err != nil {
		log.Error("failed to append timeline entry", zap.Error(err))
	}
}
