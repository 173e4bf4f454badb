// Package vetting scores partner applications for legitimacy and fraud risk.
package vetting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/partner-engine/internal/ai"
	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/logger"
	"github.com/spigell/partner-engine/internal/store"
	"github.com/spigell/partner-engine/internal/utils"
)

const (
	defaultProbeTimeout = 10 * time.Second

	reasonAdvisoryDisabled = "Advisory analysis disabled; neutral defaults used"
	reasonAdvisoryDegraded = "Advisory analysis unavailable; neutral defaults used"
)

// Options configure a Service. Zero values select defaults.
type Options struct {
	Website      *WebsiteProber
	Advisor      ai.VettingAdvisor
	ProbeTimeout time.Duration
	Logger       *zap.Logger
}

// Service runs the probe set and the scorer for one application at a time.
type Service struct {
	apps         store.Applications
	website      *WebsiteProber
	advisor      ai.VettingAdvisor
	probeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func New(apps store.Applications, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Website == nil {
		opts.Website = NewWebsiteProber(nil, nil, opts.Logger)
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}

	return &Service{
		apps:         apps,
		website:      opts.Website,
		advisor:      opts.Advisor,
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

// VetByID loads the stored application and vets it.
func (s *Service) VetByID(ctx context.Context, id string) (*domain.VettingResult, error) {
	app, err := s.apps.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get application %q: %w", id, err)
	}
	return s.Vet(ctx, app)
}

// Vet validates app, runs every probe, scores the outcome and persists it.
// A persistence failure is returned wrapped in domain.ErrPersist together with
// the computed result.
func (s *Service) Vet(ctx context.Context, app *domain.Application) (*domain.VettingResult, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	log := logger.ForApplication(s.logger, app.ID)

	checks := s.runProbes(ctx, app, log)

	result := Score(app, checks)
	result.VettedAt = s.now().UTC()
	result.ProcessingTimeMS = utils.MillisSince(start)

	log.Info("application vetted",
		zap.Int("score", result.OverallScore),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.String("recommendation", string(result.Recommendation)),
		zap.Int("indicators", len(result.RiskIndicators)),
		zap.Int64("processing_time_ms", result.ProcessingTimeMS),
	)

	if err := s.apps.SaveVettingResult(ctx, result); err != nil {
		log.Error("failed to save vetting result", zap.Error(err))
		return result, fmt.Errorf("%w: save vetting result: %w", domain.ErrPersist, err)
	}

	return result, nil
}

// runProbes returns only after every probe has settled. Each probe writes to
// its own field, and none of them report errors.
func (s *Service) runProbes(ctx context.Context, app *domain.Application, log *zap.Logger) domain.VerificationChecks {
	var (
		checks domain.VerificationChecks
		g      errgroup.Group
	)

	g.Go(func() error {
		checks.Website = s.checkWebsite(ctx, app.Website)
		checks.Advisory = s.advise(ctx, app, checks.Website, log)
		return nil
	})
	g.Go(func() error {
		checks.Email = CheckEmail(app.ContactEmail)
		return nil
	})
	g.Go(func() error {
		checks.DuplicateFound = s.findDuplicate(ctx, app, log)
		return nil
	})
	g.Go(func() error {
		checks.SuspiciousPatterns = FindSuspiciousPatterns(app)
		return nil
	})

	_ = g.Wait()
	return checks
}

func (s *Service) checkWebsite(ctx context.Context, website string) *domain.WebsiteCheck {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	return s.website.Check(ctx, website)
}

func (s *Service) findDuplicate(ctx context.Context, app *domain.Application, log *zap.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	found, err := s.apps.HasDuplicateApplication(ctx, app.ContactEmail, app.CompanyName, app.ID)
	if err != nil {
		log.Warn("duplicate lookup failed", zap.Error(err))
		return false
	}
	return found
}

// advise never fails: call, parse and panic failures all yield the neutral
// fallback.
func (s *Service) advise(ctx context.Context, app *domain.Application, website *domain.WebsiteCheck, log *zap.Logger) (analysis domain.AdvisoryAnalysis) {
	if s.advisor == nil {
		return neutralAdvisory(reasonAdvisoryDisabled)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("advisory probe panicked", zap.Any("panic", r))
			analysis = neutralAdvisory(reasonAdvisoryDegraded)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	out, err := s.advisor.AnalyzeApplication(ctx, app, website)
	if err != nil || out == nil {
		log.Warn("advisory probe degraded", zap.Error(err))
		return neutralAdvisory(reasonAdvisoryDegraded)
	}
	if out.BusinessSignals == nil {
		out.BusinessSignals = []string{}
	}
	return *out
}
