package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/ai"
	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/utils"
)

var (
	_ ai.VettingAdvisor = (*Advisor)(nil)
	_ ai.Personalizer   = (*Advisor)(nil)
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

//go:embed vetting_prompt.md
var vettingInstruction string

//go:embed personalize_prompt.md
var personalizeInstruction string

const defaultMaxLogLength = 200

var (
	vettingSchema = ai.MustCompileSchema("vetting.json", map[string]any{
		"type": "object",
		"required": []string{
			"category_match", "service_alignment", "experience_credibility", "market_presence",
		},
		"properties": map[string]any{
			"business_signals": map[string]any{"type": []string{"array", "string", "null"}},
			"recommendation":   map[string]any{"type": []string{"string", "null"}},
			"reason":           map[string]any{"type": []string{"string", "null"}},
		},
	})

	personalizeSchema = ai.MustCompileSchema("personalize.json", map[string]any{
		"type":     "object",
		"required": []string{"justifications"},
		"properties": map[string]any{
			"justifications": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"partner_id", "sentence"},
					"properties": map[string]any{
						"partner_id": map[string]any{"type": "string"},
						"sentence":   map[string]any{"type": "string"},
					},
				},
			},
		},
	})
)

// Advisor asks Gemini for vetting opinions and match justifications.
type Advisor struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewAdvisor(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Advisor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Advisor{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

type vettingAnswer struct {
	CategoryMatch         float64  `mapstructure:"category_match"`
	ServiceAlignment      float64  `mapstructure:"service_alignment"`
	ExperienceCredibility float64  `mapstructure:"experience_credibility"`
	MarketPresence        float64  `mapstructure:"market_presence"`
	BusinessSignals       []string `mapstructure:"business_signals"`
	Recommendation        string   `mapstructure:"recommendation"`
	Reason                string   `mapstructure:"reason"`
}

// AnalyzeApplication returns an error on any call or parse failure; callers
// own the fallback.
func (a *Advisor) AnalyzeApplication(ctx context.Context, app *domain.Application, website *domain.WebsiteCheck) (*domain.AdvisoryAnalysis, error) {
	if app == nil {
		return nil, fmt.Errorf("application is required")
	}

	payload := map[string]any{
		"company_name":     app.CompanyName,
		"contact_email":    app.ContactEmail,
		"website":          app.Website,
		"categories":       app.Categories,
		"years_experience": app.YearsExperience,
		"description":      app.Description,
		"notable_clients":  app.NotableClients,
		"coverage_regions": app.CoverageRegions,
		"website_check":    website,
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal application payload: %w", err)
	}

	prompt := "Application:\n" + string(body) + "\n\nJSON Response:"
	raw, err := a.generate(ctx, "vetting", app.ID, prompt, vettingInstruction)
	if err != nil {
		return nil, err
	}

	return parseVettingAnswer(raw)
}

func parseVettingAnswer(raw string) (*domain.AdvisoryAnalysis, error) {
	data, err := vettingSchema.Decode(raw)
	if err != nil {
		return nil, err
	}

	var answer vettingAnswer
	if err := ai.DecodeInto(data, &answer); err != nil {
		return nil, err
	}

	signals := make([]string, 0, len(answer.BusinessSignals))
	for _, s := range answer.BusinessSignals {
		if s = strings.TrimSpace(s); s != "" {
			signals = append(signals, s)
		}
	}

	return &domain.AdvisoryAnalysis{
		CategoryMatch:         ai.Clamp100(answer.CategoryMatch, 50),
		ServiceAlignment:      ai.Clamp100(answer.ServiceAlignment, 50),
		ExperienceCredibility: ai.Clamp100(answer.ExperienceCredibility, 50),
		MarketPresence:        ai.Clamp100(answer.MarketPresence, 50),
		BusinessSignals:       signals,
		Recommendation:        domain.ParseDisposition(answer.Recommendation),
		Reason:                strings.TrimSpace(answer.Reason),
	}, nil
}

type personalizeAnswer struct {
	Justifications []struct {
		PartnerID string `mapstructure:"partner_id"`
		Sentence  string `mapstructure:"sentence"`
	} `mapstructure:"justifications"`
}

// Personalize returns sentences keyed by partner id. Ids not present in
// matches are dropped.
func (a *Advisor) Personalize(ctx context.Context, req *domain.ServiceRequest, matches []domain.Match) (map[string]string, error) {
	if req == nil {
		return nil, fmt.Errorf("service request is required")
	}
	if len(matches) == 0 {
		return map[string]string{}, nil
	}

	type candidate struct {
		PartnerID   string   `json:"partner_id"`
		CompanyName string   `json:"company_name"`
		Score       int      `json:"score"`
		Reasons     []string `json:"reasons"`
	}
	candidates := make([]candidate, 0, len(matches))
	known := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		candidates = append(candidates, candidate{
			PartnerID:   m.PartnerID,
			CompanyName: m.CompanyName,
			Score:       m.Score,
			Reasons:     m.Reasons,
		})
		known[m.PartnerID] = struct{}{}
	}

	body, err := json.MarshalIndent(map[string]any{
		"request": map[string]any{
			"title":       req.Title,
			"description": req.Description,
			"category":    req.Category,
			"location":    req.PreferredLocation,
		},
		"partners": candidates,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal personalization payload: %w", err)
	}

	raw, err := a.generate(ctx, "personalize", req.ID, "Input:\n"+string(body)+"\n\nJSON Response:", personalizeInstruction)
	if err != nil {
		return nil, err
	}

	data, err := personalizeSchema.Decode(raw)
	if err != nil {
		return nil, err
	}

	var answer personalizeAnswer
	if err := ai.DecodeInto(data, &answer); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(answer.Justifications))
	for _, j := range answer.Justifications {
		sentence := strings.TrimSpace(j.Sentence)
		if _, ok := known[j.PartnerID]; !ok || sentence == "" {
			continue
		}
		out[j.PartnerID] = sentence
	}
	return out, nil
}

func (a *Advisor) generate(ctx context.Context, purpose, subjectID, prompt, system string) (string, error) {
	a.logger.Debug("gemini generate content request",
		zap.String("purpose", purpose),
		zap.String("subject_id", subjectID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
	)

	raw, err := a.generator.GenerateContent(ctx, system, prompt)
	if err != nil {
		return "", err
	}

	a.logger.Debug("gemini generate content response",
		zap.String("purpose", purpose),
		zap.String("subject_id", subjectID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)
	return raw, nil
}
