// Package matching ranks approved partners against a client service request.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/logger"
	"github.com/spigell/partner-engine/internal/outreach"
	"github.com/spigell/partner-engine/internal/store"
	"github.com/spigell/partner-engine/internal/utils"
)

var errPersonalizerPanic = errors.New("personalizer panicked")

// Dispatcher runs the write side of a match: recommendations, invitations and
// the audit record.
type Dispatcher interface {
	Execute(ctx context.Context, run outreach.Run) outreach.Report
}

// Input is one match-and-notify call. A nil AutoOutreach means true and a
// non-positive MaxPartners selects the service default.
type Input struct {
	RequestID    string `json:"service_request_id"`
	AutoOutreach *bool  `json:"auto_outreach,omitempty"`
	MaxPartners  int    `json:"max_partners,omitempty"`
}

type Output struct {
	Matches             []domain.Match           `json:"matches"`
	CandidatesEvaluated int                      `json:"candidates_evaluated"`
	AutoOutreachSent    bool                     `json:"auto_outreach_sent"`
	Outreach            []domain.OutreachAttempt `json:"outreach,omitempty"`
	ProcessingTimeMS    int64                    `json:"processing_time_ms"`
	// Filters report the eligibility steps of the run for operators.
	Filters []Status `json:"-"`
}

// Options configure a Service. Zero values select defaults.
type Options struct {
	Enhancer        *Enhancer
	MaxPartners     int
	DisabledFilters []string
	BlocklistFile   string
	Logger          *zap.Logger
}

type Service struct {
	partners    store.Partners
	dispatcher  Dispatcher
	enhancer    *Enhancer
	maxPartners int
	disabled    []string
	blocklist   string
	logger      *zap.Logger
}

func New(partners store.Partners, dispatcher Dispatcher, opts Options) *Service {
	if opts.MaxPartners <= 0 {
		opts.MaxPartners = DefaultMaxPartners
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		partners:    partners,
		dispatcher:  dispatcher,
		enhancer:    opts.Enhancer,
		maxPartners: opts.MaxPartners,
		disabled:    opts.DisabledFilters,
		blocklist:   opts.BlocklistFile,
		logger:      opts.Logger,
	}
}

// Match ranks the eligible pool for the request, optionally enhances the
// reasons, and hands the shortlist to the dispatcher.
func (s *Service) Match(ctx context.Context, in Input) (*Output, error) {
	start := time.Now()

	sl, err := s.shortlist(ctx, in, true)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Matches:             sl.matches,
		CandidatesEvaluated: sl.evaluated,
		Filters:             sl.filters,
	}

	if s.dispatcher != nil {
		report := s.dispatcher.Execute(ctx, outreach.Run{
			Request:             sl.request,
			Matches:             sl.matches,
			CandidatesEvaluated: sl.evaluated,
			Outreach:            in.AutoOutreach == nil || *in.AutoOutreach,
			StartedAt:           start,
		})
		out.AutoOutreachSent = report.Sent
		out.Outreach = report.Attempts
	}

	out.ProcessingTimeMS = utils.MillisSince(start)
	return out, nil
}

// Preview ranks the pool like Match but writes nothing and skips enhancement.
func (s *Service) Preview(ctx context.Context, in Input) (*Output, error) {
	start := time.Now()

	sl, err := s.shortlist(ctx, in, false)
	if err != nil {
		return nil, err
	}

	return &Output{
		Matches:             sl.matches,
		CandidatesEvaluated: sl.evaluated,
		ProcessingTimeMS:    utils.MillisSince(start),
		Filters:             sl.filters,
	}, nil
}

type ranked struct {
	request   *domain.ServiceRequest
	matches   []domain.Match
	evaluated int
	filters   []Status
}

func (s *Service) shortlist(ctx context.Context, in Input, enhance bool) (*ranked, error) {
	if strings.TrimSpace(in.RequestID) == "" {
		return nil, fmt.Errorf("%w: service_request_id is required", domain.ErrInvalidInput)
	}
	maxPartners := in.MaxPartners
	if maxPartners <= 0 {
		maxPartners = s.maxPartners
	}

	log := logger.ForRequest(s.logger, in.RequestID)

	req, err := s.partners.GetServiceRequest(ctx, in.RequestID)
	if err != nil {
		return nil, fmt.Errorf("get service request: %w", err)
	}

	pool, err := s.partners.ListPartnersByCategory(ctx, req.Category)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}

	steps := append(DefaultFilters(), NewBlocklist(s.blocklist))
	for _, name := range s.disabled {
		DisableByName(steps, name, "disabled by configuration")
	}
	eligible, err := RunFilters(ctx, Deps{Request: req, Partners: s.partners, Logger: log}, steps, pool)
	if err != nil {
		return nil, fmt.Errorf("filter partners: %w", err)
	}

	engagements, err := s.partners.ClientEngagements(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("get client engagements: %w", err)
	}

	matches := Rank(req, eligible, NewHistory(engagements), maxPartners)
	if enhance {
		matches = s.enhancer.Enhance(ctx, req, matches)
	}

	log.Info("partners ranked",
		zap.String("category", req.Category),
		zap.Int("pool", len(pool)),
		zap.Int("eligible", len(eligible)),
		zap.Int("matches", len(matches)),
	)

	return &ranked{request: req, matches: matches, evaluated: len(eligible), filters: Describe(steps)}, nil
}
