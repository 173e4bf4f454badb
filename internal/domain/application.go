package domain

import (
	"fmt"
	"strings"
	"time"
)

// Application is the submitted identity of a prospective partner.
type Application struct {
	ID              string   `json:"id" yaml:"id"`
	CompanyName     string   `json:"company_name" yaml:"company_name"`
	ContactEmail    string   `json:"contact_email" yaml:"contact_email"`
	Website         string   `json:"website,omitempty" yaml:"website"`
	Categories      []string `json:"categories,omitempty" yaml:"categories"`
	YearsExperience int      `json:"years_experience,omitempty" yaml:"years_experience"`
	Description     string   `json:"description,omitempty" yaml:"description"`
	NotableClients  string   `json:"notable_clients,omitempty" yaml:"notable_clients"`
	CoverageRegions []string `json:"coverage_regions,omitempty" yaml:"coverage_regions"`
}

// Validate reports missing required fields as ErrInvalidInput.
func (a *Application) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: application is required", ErrInvalidInput)
	}

	var missing []string
	if strings.TrimSpace(a.ID) == "" {
		missing = append(missing, "application_id")
	}
	if strings.TrimSpace(a.CompanyName) == "" {
		missing = append(missing, "company_name")
	}
	if strings.TrimSpace(a.ContactEmail) == "" {
		missing = append(missing, "contact_email")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}

	return nil
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor maps an overall score to its fixed tier.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskLow
	case score >= 60:
		return RiskMedium
	case score >= 40:
		return RiskHigh
	default:
		return RiskCritical
	}
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type Disposition string

const (
	DispositionApprove      Disposition = "approve"
	DispositionManualReview Disposition = "manual_review"
	DispositionReject       Disposition = "reject"
)

// ParseDisposition normalizes free-form model output, defaulting to manual review.
func ParseDisposition(s string) Disposition {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, " ", "_"))) {
	case string(DispositionApprove), "approved":
		return DispositionApprove
	case string(DispositionReject), "rejected":
		return DispositionReject
	default:
		return DispositionManualReview
	}
}

type RiskIndicator struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	ScoreImpact int      `json:"score_impact"`
}

// WebsiteCheck is the reachability probe output. A nil *WebsiteCheck means no
// website was declared.
type WebsiteCheck struct {
	URL               string `json:"url"`
	Domain            string `json:"domain,omitempty"`
	Reachable         bool   `json:"reachable"`
	Secure            bool   `json:"ssl_valid"`
	StatusCode        int    `json:"status_code,omitempty"`
	ProfessionalScore int    `json:"professional_score"`
	DomainAge         string `json:"domain_age"`
}

type EmailCheck struct {
	Valid          bool   `json:"valid"`
	Domain         string `json:"domain,omitempty"`
	IsFreeProvider bool   `json:"is_free_provider"`
	IsDisposable   bool   `json:"is_disposable"`
	IsBusiness     bool   `json:"is_business"`
}

// AdvisoryAnalysis is the advisory model opinion. Degraded is set when the
// neutral fallback was used.
type AdvisoryAnalysis struct {
	CategoryMatch         int         `json:"category_match"`
	ServiceAlignment      int         `json:"service_alignment"`
	ExperienceCredibility int         `json:"experience_credibility"`
	MarketPresence        int         `json:"market_presence"`
	BusinessSignals       []string    `json:"business_signals"`
	Recommendation        Disposition `json:"recommendation"`
	Reason                string      `json:"reason"`
	Degraded              bool        `json:"degraded,omitempty"`
}

// Average returns the mean of the four sub-scores.
func (a AdvisoryAnalysis) Average() float64 {
	return float64(a.CategoryMatch+a.ServiceAlignment+a.ExperienceCredibility+a.MarketPresence) / 4
}

type VerificationChecks struct {
	Website            *WebsiteCheck    `json:"website"`
	Email              EmailCheck       `json:"email"`
	DuplicateFound     bool             `json:"duplicate_found"`
	SuspiciousPatterns []string         `json:"suspicious_patterns"`
	Advisory           AdvisoryAnalysis `json:"ai_analysis"`
}

// AutoVettingItems is a display checklist derived from the same facts as the score.
type AutoVettingItems struct {
	EmailValid           bool `json:"email_valid"`
	BusinessEmail        bool `json:"business_email"`
	NotDisposable        bool `json:"not_disposable"`
	WebsiteReachable     bool `json:"website_reachable"`
	WebsiteSecure        bool `json:"website_secure"`
	NoDuplicates         bool `json:"no_duplicates"`
	NoSuspiciousPatterns bool `json:"no_suspicious_patterns"`
	ExperienceVerified   bool `json:"experience_verified"`
	AIApproved           bool `json:"ai_approved"`
}

type VettingResult struct {
	ApplicationID        string             `json:"application_id"`
	OverallScore         int                `json:"overall_score"`
	RiskLevel            RiskLevel          `json:"risk_level"`
	VerificationChecks   VerificationChecks `json:"verification_checks"`
	RiskIndicators       []RiskIndicator    `json:"risk_indicators"`
	Recommendation       Disposition        `json:"ai_recommendation"`
	RecommendationReason string             `json:"recommendation_reason"`
	AutoVettingItems     AutoVettingItems   `json:"auto_vetting_items"`
	VettedAt             time.Time          `json:"vetted_at"`
	ProcessingTimeMS     int64              `json:"processing_time_ms"`
}

// HasSeverity reports whether any indicator carries the given severity.
func (r *VettingResult) HasSeverity(s Severity) bool {
	for _, ind := range r.RiskIndicators {
		if ind.Severity == s {
			return true
		}
	}
	return false
}
