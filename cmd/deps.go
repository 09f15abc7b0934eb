package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/ai/gemini"
	"github.com/spigell/resume-screener/internal/ai/openai"
	"github.com/spigell/resume-screener/internal/ai/vertex"
	"github.com/spigell/resume-screener/internal/audit"
	"github.com/spigell/resume-screener/internal/events"
	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/screening"
	"github.com/spigell/resume-screener/internal/secrets"
	"github.com/spigell/resume-screener/internal/store/memory"
	"github.com/spigell/resume-screener/internal/store/sqlstore"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// backend is what every store implementation provides.
type backend interface {
	screening.Store
	screening.Catalog
	audit.Store
}

// runtime holds the wired collaborators of a command.
type runtime struct {
	config  *Config
	logger  *zap.Logger
	backend backend
	service *screening.Service
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("closing resource", zap.Error(err))
		}
	}
	_ = r.logger.Sync()
}

// newLogger builds the process logger or exits.
func newLogger() *zap.Logger {
	lg, err := logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: viper.GetString("log-output"),
		Fields: []zap.Field{zap.String("app", app)},
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return lg
}

// newRuntime wires the store, the gateway and the service. withGateway false
// is used by commands that never call the model.
func newRuntime(ctx context.Context, withGateway bool) (*runtime, error) {
	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	rt := &runtime{config: config, logger: logger}

	store, closeStore, err := newBackend(ctx, config.Store, logger)
	if err != nil {
		return nil, err
	}
	rt.backend = store
	rt.closers = append(rt.closers, closeStore)

	var gateway ai.Gateway = offlineGateway{}
	if withGateway {
		gw, closeGateway, err := newGateway(ctx, config.AI, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		gateway = gw
		rt.closers = append(rt.closers, closeGateway)
	}

	publisher, closePublisher, err := newPublisher(ctx, config.Events, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, closePublisher)

	svc, err := screening.NewService(screening.Deps{
		Store:     store,
		Catalog:   store,
		Gateway:   gateway,
		Audit:     audit.New(store, logger.Named("audit")),
		Publisher: publisher,
		Logger:    logger.Named("screening"),
	}, screening.Config{
		MaxSnippets:     config.Screening.MaxSnippets,
		ResumeRuneLimit: config.Screening.ResumeRuneLimit,
		BatchDefault:    config.Screening.BatchDefault,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.service = svc

	if err := extract.SetPDFLicense(config.PDF.LicenseKey); err != nil {
		logger.Warn("pdf license rejected", zap.Error(err))
	}

	return rt, nil
}

func newBackend(ctx context.Context, cfg *StoreConfig, logger *zap.Logger) (backend, func() error, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
		if strings.TrimSpace(cfg.DSN) != "" {
			driver = "postgres"
		}
	}

	switch driver {
	case "memory":
		logger.Warn("using in-memory store, nothing will be persisted")
		return memory.New(), func() error { return nil }, nil
	case "sqlite":
		s, err := sqlstore.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("opened sqlite store", zap.String("path", cfg.Path))
		return s, s.Close, nil
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, nil, errors.New("store.dsn (or DATABASE_URL) is required for postgres")
		}
		s, err := sqlstore.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("opened postgres store")
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func newGateway(ctx context.Context, cfg *AIConfig, lg *zap.Logger) (ai.Gateway, func() error, error) {
	noop := func() error { return nil }

	var (
		gateway ai.Gateway
		closer  = noop
	)

	switch provider := strings.TrimSpace(strings.ToLower(cfg.Provider)); provider {
	case "", "gemini":
		apiKey, err := secrets.Load(secrets.Source{
			Name:           "gemini api key",
			Value:          cfg.Gemini.APIKey,
			File:           cfg.Gemini.APIKeyFile,
			KeyringAccount: "gemini",
		})
		if err != nil {
			return nil, nil, ai.NewError(ai.KindMissingCredentials, "gemini",
				fmt.Errorf("%w (set GEMINI_API_KEY, ai.gemini.api-key-file or run `%s secret set gemini`)", err, app))
		}
		generator, err := gemini.NewGenerator(ctx, apiKey, gemini.Options{
			Model:        cfg.Gemini.Model,
			MaxRetries:   cfg.Gemini.MaxRetries,
			MaxLogLength: cfg.Gemini.MaxLogLength,
		}, lg.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
		if err != nil {
			return nil, nil, err
		}
		gateway = generator
	case "openai":
		apiKey, err := secrets.Load(secrets.Source{
			Name:           "openai api key",
			Value:          cfg.OpenAI.APIKey,
			File:           cfg.OpenAI.APIKeyFile,
			KeyringAccount: "openai",
		})
		if err != nil {
			return nil, nil, ai.NewError(ai.KindMissingCredentials, "openai",
				fmt.Errorf("%w (set OPENAI_API_KEY, ai.openai.api-key-file or run `%s secret set openai`)", err, app))
		}
		client, err := openai.New(apiKey, openai.Options{
			Model:        cfg.OpenAI.Model,
			BaseURL:      cfg.OpenAI.BaseURL,
			MaxLogLength: cfg.OpenAI.MaxLogLength,
		}, lg)
		if err != nil {
			return nil, nil, err
		}
		gateway = client
	case "vertex":
		client, err := vertex.New(ctx, vertex.Options{
			Project:      cfg.Vertex.Project,
			Location:     cfg.Vertex.Location,
			Model:        cfg.Vertex.Model,
			MaxLogLength: cfg.Vertex.MaxLogLength,
		}, lg)
		if err != nil {
			return nil, nil, err
		}
		gateway = client
		closer = client.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	gateway = ai.WithTimeout(gateway, cfg.Timeout)
	if cfg.RequestsPerMinute > 0 {
		gateway = ai.WithRateLimit(gateway, cfg.RequestsPerMinute)
	}

	lg.Info("ai gateway ready",
		zap.String(logger.FieldProvider, gateway.Provider()),
		zap.String(logger.FieldModel, gateway.Model()),
	)

	return gateway, closer, nil
}

func newPublisher(ctx context.Context, cfg *EventsConfig, logger *zap.Logger) (events.Publisher, func() error, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return events.Nop{}, func() error { return nil }, nil
	}

	rdb, err := events.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("publishing events to redis", zap.String("channel", cfg.Channel))
	return events.NewRedis(rdb, cfg.Channel), rdb.Close, nil
}

// offlineGateway backs commands that only read or review evaluations.
type offlineGateway struct{}

func (offlineGateway) Generate(context.Context, ai.Prompt) (*ai.Response, error) {
	return nil, ai.NewError(ai.KindMissingCredentials, "offline", errors.New("this command does not call the model"))
}

func (offlineGateway) Provider() string { return "offline" }
func (offlineGateway) Model() string    { return "" }

// redacted hides secrets before the config is logged.
func redacted(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	if cfg.AI != nil {
		aiCfg := *cfg.AI
		if cfg.AI.Gemini != nil {
			g := *cfg.AI.Gemini
			g.APIKey = mask(g.APIKey)
			aiCfg.Gemini = &g
		}
		if cfg.AI.OpenAI != nil {
			o := *cfg.AI.OpenAI
			o.APIKey = mask(o.APIKey)
			aiCfg.OpenAI = &o
		}
		out.AI = &aiCfg
	}
	if cfg.Store != nil {
		s := *cfg.Store
		s.DSN = mask(s.DSN)
		out.Store = &s
	}
	if cfg.PDF != nil {
		p := *cfg.PDF
		p.LicenseKey = mask(p.LicenseKey)
		out.PDF = &p
	}
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
