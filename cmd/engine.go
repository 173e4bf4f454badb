package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/ai/gemini"
	"github.com/spigell/partner-engine/internal/cache"
	"github.com/spigell/partner-engine/internal/logger"
	"github.com/spigell/partner-engine/internal/matching"
	"github.com/spigell/partner-engine/internal/notify"
	"github.com/spigell/partner-engine/internal/outreach"
	"github.com/spigell/partner-engine/internal/secrets"
	"github.com/spigell/partner-engine/internal/store"
	"github.com/spigell/partner-engine/internal/store/fixture"
	"github.com/spigell/partner-engine/internal/store/postgres"
	"github.com/spigell/partner-engine/internal/vetting"
)

const (
	dataSourcePostgres = "postgres"
	dataSourceFixture  = "fixture"
)

// engine is the wired set of services shared by the commands.
type engine struct {
	config  *Config
	logger  *zap.Logger
	store   store.Store
	vetter  *vetting.Service
	matcher *matching.Service

	closers []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// bootstrap builds the logger and reads the config the way every command needs it.
// Commands printing a result to stdout log to stderr.
func bootstrap(logToStderr bool) (*Config, *zap.Logger) {
	opts := logger.Options{
		JSON:    viper.GetBool("json"),
		Debug:   viper.GetBool("debug"),
		Version: buildVersion(),
	}
	if logToStderr {
		opts.Output = "stderr"
	}

	logger, err := logger.Build(opts)
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	return config, logger
}

func newEngine(ctx context.Context, config *Config, log *zap.Logger) (*engine, error) {
	e := &engine{config: config, logger: log}

	st, err := openStore(ctx, config, log)
	if err != nil {
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, st.Close)

	var reachability vetting.ReachabilityCache
	if config.Redis != nil && strings.TrimSpace(config.Redis.URL) != "" {
		c, err := cache.Dial(ctx, config.Redis.URL, config.Redis.TTL)
		if err != nil {
			log.Warn("reachability cache disabled", zap.Error(err))
		} else {
			reachability = c
			e.closers = append(e.closers, func() { _ = c.Close() })
		}
	}

	advisor, err := newAdvisor(ctx, config.AI, log)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("building ai advisor: %w", err)
	}

	vettingOpts := vetting.Options{
		Website: vetting.NewWebsiteProber(nil, reachability, log),
		Logger:  log.Named("vetting"),
	}
	if config.Vetting != nil {
		vettingOpts.ProbeTimeout = config.Vetting.ProbeTimeout
	}
	if advisor != nil {
		vettingOpts.Advisor = advisor
	}
	e.vetter = vetting.New(st, vettingOpts)

	outreachOpts := outreach.Options{Logger: log.Named("outreach")}
	if config.Outreach != nil {
		outreachOpts.NotifyTimeout = config.Outreach.NotifyTimeout
	}
	email, err := newEmailChannel(config.RabbitMQ, log)
	if err != nil {
		e.Close()
		return nil, err
	}
	if email != nil {
		outreachOpts.Email = email
		e.closers = append(e.closers, func() { _ = email.Close() })
	}

	matchingOpts := matching.Options{Logger: log.Named("matching")}
	if mc := config.Matching; mc != nil {
		matchingOpts.MaxPartners = mc.MaxPartners
		matchingOpts.DisabledFilters = mc.DisabledFilters
		matchingOpts.BlocklistFile = mc.BlocklistFile
		if mc.Personalize && advisor != nil {
			matchingOpts.Enhancer = matching.NewEnhancer(advisor, mc.PersonalizeTimeout, log.Named("personalize"))
		}
	}
	e.matcher = matching.New(st, outreach.New(st, outreachOpts), matchingOpts)

	return e, nil
}

func openStore(ctx context.Context, config *Config, log *zap.Logger) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(config.DataSource)) {
	case dataSourceFixture:
		st, err := fixture.Load(config.FixtureFile)
		if err != nil {
			return nil, err
		}
		log.Info("using fixture data source", zap.String("file", config.FixtureFile))
		return st, nil
	case dataSourcePostgres, "":
		db, err := openPostgres(ctx, config.Database)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported data source: %s", config.DataSource)
	}
}

func openPostgres(ctx context.Context, cfg *DatabaseConfig) (*postgres.DB, error) {
	if cfg == nil {
		return nil, errors.New("database configuration is required for the postgres data source")
	}

	url, err := secrets.Load(secrets.Source{
		Name:  "database url",
		File:  cfg.URLFile,
		Env:   "DATABASE_URL",
		Value: cfg.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set database.url-file, database.url or DATABASE_URL)", err)
	}

	return postgres.Connect(ctx, url, cfg.MaxConns)
}

func newEmailChannel(cfg *RabbitMQConfig, log *zap.Logger) (*notify.Email, error) {
	if cfg == nil {
		return nil, nil
	}

	url, err := secrets.Optional(secrets.Source{
		Name:  "rabbitmq url",
		File:  cfg.URLFile,
		Value: cfg.URL,
	})
	if err != nil {
		return nil, err
	}
	if url == "" {
		log.Info("e-mail channel disabled", zap.String("reason", "rabbitmq.url is not set"))
		return nil, nil
	}

	email, err := notify.DialEmail(url, cfg.Exchange, cfg.RoutingKey, log.Named("email"))
	if err != nil {
		return nil, fmt.Errorf("connecting e-mail channel: %w", err)
	}
	return email, nil
}

func newAdvisor(ctx context.Context, cfg *AIConfig, log *zap.Logger) (*gemini.Advisor, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, errors.New("gemini configuration is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
		Value: cfg.Gemini.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	aiLogger := logger.WithProvider(log, "gemini", cfg.Gemini.Model)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries,
		aiLogger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
	if err != nil {
		return nil, err
	}

	return gemini.NewAdvisor(generator, cfg.Gemini.MaxLogLength, aiLogger), nil
}
