package ai

import (
	"context"

	"github.com/spigell/partner-engine/internal/domain"
)

// Generator is a single request/response text-completion call.
type Generator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// VettingAdvisor gives an advisory opinion on a partner application.
type VettingAdvisor interface {
	AnalyzeApplication(ctx context.Context, app *domain.Application, website *domain.WebsiteCheck) (*domain.AdvisoryAnalysis, error)
}

// Personalizer returns one justification sentence per partner id.
type Personalizer interface {
	Personalize(ctx context.Context, req *domain.ServiceRequest, matches []domain.Match) (map[string]string, error)
}
