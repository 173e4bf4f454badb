package vetting

import (
	"fmt"
	"math"
	"strings"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/utils"
)

const (
	baseScore = 60

	approveThreshold = 80
	rejectThreshold  = 40
)

// rule is one fixed risk indicator with the condition that raises it.
type rule struct {
	indicator domain.RiskIndicator
	applies   func(app *domain.Application, c *domain.VerificationChecks) bool
}

var rules = []rule{
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityWarning, Category: "invalid_email", Description: "Contact e-mail is not a valid address", ScoreImpact: -15},
		applies:   func(_ *domain.Application, c *domain.VerificationChecks) bool { return !c.Email.Valid },
	},
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityCritical, Category: "disposable_email", Description: "Contact e-mail uses a disposable domain", ScoreImpact: -30},
		applies:   func(_ *domain.Application, c *domain.VerificationChecks) bool { return c.Email.IsDisposable },
	},
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityWarning, Category: "duplicate_application", Description: "Another application shares this e-mail or company name", ScoreImpact: -15},
		applies:   func(_ *domain.Application, c *domain.VerificationChecks) bool { return c.DuplicateFound },
	},
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityWarning, Category: "website_unreachable", Description: "Declared website could not be reached", ScoreImpact: -10},
		applies: func(_ *domain.Application, c *domain.VerificationChecks) bool {
			return c.Website != nil && !c.Website.Reachable
		},
	},
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityWarning, Category: "website_insecure", Description: "Website does not use secure transport", ScoreImpact: -5},
		applies: func(_ *domain.Application, c *domain.VerificationChecks) bool {
			return c.Website != nil && c.Website.Reachable && !c.Website.Secure
		},
	},
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityWarning, Category: "suspicious_patterns", Description: "Placeholder or low-effort text detected", ScoreImpact: -20},
		applies:   func(_ *domain.Application, c *domain.VerificationChecks) bool { return len(c.SuspiciousPatterns) > 0 },
	},
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityInfo, Category: "non_business_email", Description: "Contact e-mail is on a free provider", ScoreImpact: -5},
		applies: func(_ *domain.Application, c *domain.VerificationChecks) bool {
			return c.Email.Valid && !c.Email.IsDisposable && !c.Email.IsBusiness
		},
	},
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityInfo, Category: "established_business", Description: "More than five years of claimed experience", ScoreImpact: 10},
		applies:   func(app *domain.Application, _ *domain.VerificationChecks) bool { return app.YearsExperience > 5 },
	},
	{
		indicator: domain.RiskIndicator{Severity: domain.SeverityInfo, Category: "notable_clients", Description: "Notable clients provided", ScoreImpact: 5},
		applies: func(app *domain.Application, _ *domain.VerificationChecks) bool {
			return len(strings.TrimSpace(app.NotableClients)) > 10
		},
	},
}

// Score folds settled probe outputs into a result. It is pure and cannot fail;
// timing fields are left for the caller.
func Score(app *domain.Application, checks domain.VerificationChecks) *domain.VettingResult {
	if app == nil {
		app = &domain.Application{}
	}

	subtotal := baseScore + websiteBonus(checks.Website) + advisoryComponent(checks.Advisory)

	indicators := []domain.RiskIndicator{}
	for _, r := range rules {
		if r.applies(app, &checks) {
			indicators = append(indicators, r.indicator)
			subtotal += r.indicator.ScoreImpact
		}
	}

	score := utils.Clamp(subtotal, 0, 100)
	result := &domain.VettingResult{
		ApplicationID:      app.ID,
		OverallScore:       score,
		RiskLevel:          domain.RiskLevelFor(score),
		VerificationChecks: checks,
		RiskIndicators:     indicators,
		AutoVettingItems:   autoItems(app, &checks),
	}
	result.Recommendation, result.RecommendationReason = disposition(result, checks.Advisory)

	return result
}

func websiteBonus(w *domain.WebsiteCheck) int {
	switch {
	case w == nil || !w.Reachable:
		return 0
	case w.Secure:
		return 15
	default:
		return 10
	}
}

func advisoryComponent(a domain.AdvisoryAnalysis) int {
	return int(math.Round(a.Average() * 0.25))
}

func disposition(r *domain.VettingResult, advisory domain.AdvisoryAnalysis) (domain.Disposition, string) {
	if r.HasSeverity(domain.SeverityCritical) {
		var names []string
		for _, ind := range r.RiskIndicators {
			if ind.Severity == domain.SeverityCritical {
				names = append(names, ind.Category)
			}
		}
		return domain.DispositionReject, fmt.Sprintf("Critical risk indicators: %s", strings.Join(names, ", "))
	}

	if r.OverallScore >= approveThreshold && !r.HasSeverity(domain.SeverityWarning) {
		return domain.DispositionApprove, fmt.Sprintf("Score %d with no warnings", r.OverallScore)
	}

	if r.OverallScore < rejectThreshold {
		return domain.DispositionReject, fmt.Sprintf("Score %d is below the minimum of %d", r.OverallScore, rejectThreshold)
	}

	reason := advisory.Reason
	if reason == "" {
		reason = "Advisory review suggested"
	}
	rec := advisory.Recommendation
	if rec == "" {
		rec = domain.DispositionManualReview
	}
	return rec, reason
}

func autoItems(app *domain.Application, c *domain.VerificationChecks) domain.AutoVettingItems {
	return domain.AutoVettingItems{
		EmailValid:           c.Email.Valid,
		BusinessEmail:        c.Email.IsBusiness,
		NotDisposable:        !c.Email.IsDisposable,
		WebsiteReachable:     c.Website != nil && c.Website.Reachable,
		WebsiteSecure:        c.Website != nil && c.Website.Secure,
		NoDuplicates:         !c.DuplicateFound,
		NoSuspiciousPatterns: len(c.SuspiciousPatterns) == 0,
		ExperienceVerified:   app.YearsExperience > 5,
		AIApproved:           c.Advisory.Recommendation == domain.DispositionApprove,
	}
}
