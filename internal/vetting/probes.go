package vetting

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/spigell/partner-engine/internal/domain"
)

const domainAgeUnknown = "unknown"

// ReachabilityCache stores website probe results keyed by normalized URL.
type ReachabilityCache interface {
	GetWebsite(ctx context.Context, key string) (*domain.WebsiteCheck, bool, error)
	PutWebsite(ctx context.Context, key string, check *domain.WebsiteCheck) error
}

// WebsiteProber checks that a declared website exists.
type WebsiteProber struct {
	client *http.Client
	cache  ReachabilityCache
	logger *zap.Logger
}

// NewWebsiteProber returns a prober using client. cache may be nil.
func NewWebsiteProber(client *http.Client, cache ReachabilityCache, logger *zap.Logger) *WebsiteProber {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsiteProber{client: client, cache: cache, logger: logger}
}

// Check returns nil when no website is declared. Network failures produce an
// unreachable result, never an error.
func (p *WebsiteProber) Check(ctx context.Context, website string) *domain.WebsiteCheck {
	website = strings.TrimSpace(website)
	if website == "" {
		return nil
	}

	target := normalizeWebsite(website)
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return &domain.WebsiteCheck{URL: target, DomainAge: domainAgeUnknown}
	}

	if p.cache != nil {
		cached, ok, err := p.cache.GetWebsite(ctx, target)
		if err != nil {
			p.logger.Warn("reachability cache read failed", zap.String("url", target), zap.Error(err))
		} else if ok {
			return cached
		}
	}

	check := p.probe(ctx, u)

	if p.cache != nil && ctx.Err() == nil {
		if err := p.cache.PutWebsite(ctx, target, check); err != nil {
			p.logger.Warn("reachability cache write failed", zap.String("url", target), zap.Error(err))
		}
	}

	return check
}

func (p *WebsiteProber) probe(ctx context.Context, u *url.URL) *domain.WebsiteCheck {
	check := &domain.WebsiteCheck{
		URL:       u.String(),
		Domain:    registrableDomain(u.Hostname()),
		DomainAge: domainAgeUnknown,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return check
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("website unreachable", zap.String("url", check.URL), zap.Error(err))
		return check
	}
	resp.Body.Close()

	check.StatusCode = resp.StatusCode
	// A blocked response still proves the site is there.
	check.Reachable = resp.StatusCode < http.StatusBadRequest || resp.StatusCode == http.StatusForbidden
	if check.Reachable {
		final := u
		if resp.Request != nil && resp.Request.URL != nil {
			final = resp.Request.URL
		}
		check.Secure = strings.EqualFold(final.Scheme, "https")
	}
	check.ProfessionalScore = professionalScore(check.Reachable, check.Secure)

	return check
}

func professionalScore(reachable, secure bool) int {
	switch {
	case reachable && secure:
		return 80
	case reachable:
		return 50
	default:
		return 0
	}
}

func normalizeWebsite(website string) string {
	lower := strings.ToLower(website)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return website
	}
	return "https://" + strings.TrimPrefix(website, "//")
}

func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	freeProviders = map[string]struct{}{
		"gmail.com": {}, "googlemail.com": {}, "yahoo.com": {}, "hotmail.com": {}, "outlook.com": {},
		"live.com": {}, "aol.com": {}, "icloud.com": {}, "me.com": {}, "mail.com": {},
		"protonmail.com": {}, "proton.me": {}, "gmx.com": {}, "yandex.ru": {}, "zoho.com": {},
	}

	disposableProviders = map[string]struct{}{
		"mailinator.com": {}, "10minutemail.com": {}, "guerrillamail.com": {}, "tempmail.com": {},
		"temp-mail.org": {}, "throwaway.email": {}, "yopmail.com": {}, "trashmail.com": {},
		"sharklasers.com": {}, "getnada.com": {}, "dispostable.com": {}, "maildrop.cc": {},
	}
)

// CheckEmail validates syntax and classifies the address domain.
func CheckEmail(email string) domain.EmailCheck {
	email = strings.TrimSpace(email)
	if !emailRe.MatchString(email) {
		return domain.EmailCheck{}
	}

	host := strings.ToLower(email[strings.LastIndex(email, "@")+1:])
	base := registrableDomain(host)

	_, free := freeProviders[base]
	_, disposable := disposableProviders[base]

	return domain.EmailCheck{
		Valid:          true,
		Domain:         host,
		IsFreeProvider: free,
		IsDisposable:   disposable,
		IsBusiness:     !free && !disposable,
	}
}

type suspiciousPattern struct {
	label string
	re    *regexp.Regexp
}

var suspiciousPatterns = []suspiciousPattern{
	{label: "test", re: regexp.MustCompile(`(?i)\btest\b`)},
	{label: "demo", re: regexp.MustCompile(`(?i)\bdemo\b`)},
	{label: "fake", re: regexp.MustCompile(`(?i)\bfake\b`)},
	{label: "sample", re: regexp.MustCompile(`(?i)\bsample\b`)},
	{label: "placeholder", re: regexp.MustCompile(`(?i)\bplaceholder\b`)},
	{label: "lorem ipsum", re: regexp.MustCompile(`(?i)\blorem\s+ipsum\b`)},
	{label: "keyboard mash", re: regexp.MustCompile(`(?i)asdf|qwerty|zxcv`)},
}

const repeatedCharsLabel = "repeated characters"

// FindSuspiciousPatterns scans the company name and description for
// placeholder text. The result is empty, never nil, when nothing matches.
func FindSuspiciousPatterns(app *domain.Application) []string {
	matches := []string{}
	if app == nil {
		return matches
	}

	text := app.CompanyName + "\n" + app.Description
	for _, p := range suspiciousPatterns {
		if p.re.MatchString(text) {
			matches = append(matches, p.label)
		}
	}
	if hasRepeatedRun(text, 4) {
		matches = append(matches, repeatedCharsLabel)
	}

	return matches
}

// hasRepeatedRun reports a run of at least n identical letters. Digits never
// count, amounts like 10000 are ordinary.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range strings.ToLower(s) {
		if !isLetter(r) {
			prev, run = 0, 0
			continue
		}
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= n {
			return true
		}
	}
	return false
}

func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z'
}

func neutralAdvisory(reason string) domain.AdvisoryAnalysis {
	return domain.AdvisoryAnalysis{
		CategoryMatch:         50,
		ServiceAlignment:      50,
		ExperienceCredibility: 50,
		MarketPresence:        50,
		BusinessSignals:       []string{},
		Recommendation:        domain.DispositionManualReview,
		Reason:                reason,
		Degraded:              true,
	}
}
