package di

import (
	"fmt"
	"strings"
	"time"

	"github.com/LeJamon/ledgerbridge/internal/config"
	"github.com/LeJamon/ledgerbridge/internal/dmsclient"
	"github.com/LeJamon/ledgerbridge/internal/extractor"
	"github.com/LeJamon/ledgerbridge/internal/ledgerclient"
	"github.com/LeJamon/ledgerbridge/internal/llm"
	"github.com/LeJamon/ledgerbridge/internal/llm/queue"
	"github.com/LeJamon/ledgerbridge/internal/logging"
	"github.com/LeJamon/ledgerbridge/internal/matching"
	"github.com/LeJamon/ledgerbridge/internal/payload"
	"github.com/LeJamon/ledgerbridge/internal/reconcile"
	"github.com/LeJamon/ledgerbridge/internal/review"
	"github.com/LeJamon/ledgerbridge/internal/store"
	"github.com/LeJamon/ledgerbridge/internal/store/postgres"
	"github.com/LeJamon/ledgerbridge/internal/store/sqlite"

	"github.com/LeJamon/ledgerbridge/internal/cachesync"
)

const (
	defaultClientTimeout = 30 * time.Second
	defaultMaxRetries    = 3
)

// Provider configures and registers services in the container.
type Provider struct {
	container *Container
	config    *config.Config
	log       logging.Logger
}

// NewProvider creates a new service provider.
func NewProvider(container *Container, cfg *config.Config, log logging.Logger) *Provider {
	if log == nil {
		log = logging.NoOp()
	}
	return &Provider{container: container, config: cfg, log: log}
}

// RegisterAll registers all services.
func (p *Provider) RegisterAll() error {
	p.container.Register(ServiceConfig, p.config)
	p.container.Register(ServiceLogger, p.log)

	p.registerStoreBuilder()
	p.registerClientBuilders()
	p.registerDomainBuilders()

	return nil
}

// registerStoreBuilder registers the state store, choosing the postgres
// backend when state_db_path looks like a postgres DSN and sqlite
// otherwise — the same dual-backend split the teacher's relational layer
// offered, collapsed onto spec.md's single state_db_path setting.
func (p *Provider) registerStoreBuilder() {
	p.container.RegisterBuilder(ServiceStore, func(c *Container) (interface{}, error) {
		path := p.config.StateDBPath
		if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
			return postgres.Open(path, p.log.With("store"))
		}
		return sqlite.Open(path, p.log.With("store"))
	})
}

// registerClientBuilders registers the DMS and ledger HTTP clients.
func (p *Provider) registerClientBuilders() {
	p.container.RegisterBuilder(ServiceDMS, func(c *Container) (interface{}, error) {
		return dmsclient.New(
			p.config.DMS.BaseURL,
			p.config.DMS.Token,
			defaultClientTimeout,
			defaultMaxRetries,
			p.log.With("dmsclient"),
		), nil
	})

	p.container.RegisterBuilder(ServiceLedger, func(c *Container) (interface{}, error) {
		return ledgerclient.New(
			p.config.Ledger.BaseURL,
			p.config.Ledger.Token,
			defaultClientTimeout,
			defaultMaxRetries,
			p.log.With("ledgerclient"),
		), nil
	})
}

// registerDomainBuilders registers the payload builder, synchroniser,
// matching engine, LLM service, job queue, and reconciliation orchestrator
// — every service wired transitively through the store and clients above.
func (p *Provider) registerDomainBuilders() {
	p.container.RegisterBuilder(ServiceBuilder, func(c *Container) (interface{}, error) {
		return payload.NewBuilder(payload.BuilderConfig{
			DefaultSourceAccount: p.config.Ledger.DefaultSourceAccount,
			DMSBaseURL:           p.config.DMS.BaseURL,
		}), nil
	})

	p.container.RegisterBuilder(ServiceSync, func(c *Container) (interface{}, error) {
		s, err := p.getStore(c)
		if err != nil {
			return nil, err
		}
		ledger, err := p.getLedgerClient(c)
		if err != nil {
			return nil, err
		}
		return cachesync.New(ledger, s, p.log.With("cachesync")), nil
	})

	p.container.RegisterBuilder(ServiceMatcher, func(c *Container) (interface{}, error) {
		s, err := p.getStore(c)
		if err != nil {
			return nil, err
		}
		return matching.New(s, matching.Config{DateToleranceDays: p.config.Reconciliation.DateToleranceDays}), nil
	})

	p.container.RegisterBuilder(ServiceLLM, func(c *Container) (interface{}, error) {
		s, err := p.getStore(c)
		if err != nil {
			return nil, err
		}
		llmCfg := llm.DefaultConfig()
		llmCfg.Enabled = p.config.LLM.Enabled
		llmCfg.OllamaURL = p.config.LLM.OllamaURL
		llmCfg.AuthToken = p.config.LLM.AuthHeader
		llmCfg.ModelFast = p.config.LLM.ModelFast
		llmCfg.ModelFallback = p.config.LLM.ModelFallback
		llmCfg.MaxConcurrent = p.config.LLM.MaxConcurrent
		llmCfg.CalibrationN = p.config.LLM.CalibrationCount
		llmCfg.GreenThreshold = p.config.LLM.GreenThreshold
		llmCfg.RequestTimeout = p.config.LLM.Timeout()
		return llm.New(llmCfg, s, p.log.With("llm")), nil
	})

	p.container.RegisterBuilder(ServiceQueue, func(c *Container) (interface{}, error) {
		s, err := p.getStore(c)
		if err != nil {
			return nil, err
		}
		dms, err := p.getDMSClient(c)
		if err != nil {
			return nil, err
		}
		llmSvc, err := p.getLLMService(c)
		if err != nil {
			return nil, err
		}
		return queue.New(s, dms, llmSvc, queue.DefaultConfig(), p.log.With("queue")), nil
	})

	p.container.RegisterBuilder(ServiceReconcile, func(c *Container) (interface{}, error) {
		s, err := p.getStore(c)
		if err != nil {
			return nil, err
		}
		ledger, err := p.getLedgerClient(c)
		if err != nil {
			return nil, err
		}
		builder, err := p.getBuilder(c)
		if err != nil {
			return nil, err
		}
		cfg := reconcile.DefaultConfig()
		cfg.AutoMatchThreshold = p.config.Reconciliation.AutoMatchThreshold
		cfg.BankFirstMode = p.config.Reconciliation.BankFirstMode
		return reconcile.New(s, ledger, builder, cfg, p.log.With("reconcile")), nil
	})

	p.container.RegisterBuilder(ServiceExtractor, func(c *Container) (interface{}, error) {
		return extractor.NewRouter(p.log.With("extractor"), extractor.DefaultStrategies()...), nil
	})

	p.container.RegisterBuilder(ServiceScorer, func(c *Container) (interface{}, error) {
		return review.NewScorer(review.Thresholds{
			AutoThreshold:       p.config.Confidence.AutoThreshold,
			ReviewThreshold:     p.config.Confidence.ReviewThreshold,
			MinAmountConfidence: p.config.Confidence.MinAmountConfidence,
			MinDateConfidence:   p.config.Confidence.MinDateConfidence,
			MinVendorConfidence: p.config.Confidence.MinVendorConfidence,
		}), nil
	})

	p.container.RegisterBuilder(ServiceReview, func(c *Container) (interface{}, error) {
		s, err := p.getStore(c)
		if err != nil {
			return nil, err
		}
		scorer, err := p.getScorer(c)
		if err != nil {
			return nil, err
		}
		return review.NewWorkflow(s, scorer), nil
	})
}

func (p *Provider) getStore(c *Container) (store.Store, error) {
	v, err := c.Get(ServiceStore)
	if err != nil {
		return nil, err
	}
	s, ok := v.(store.Store)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a store.Store", ServiceStore)
	}
	return s, nil
}

func (p *Provider) getDMSClient(c *Container) (dmsclient.Client, error) {
	v, err := c.Get(ServiceDMS)
	if err != nil {
		return nil, err
	}
	cl, ok := v.(dmsclient.Client)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a dmsclient.Client", ServiceDMS)
	}
	return cl, nil
}

func (p *Provider) getLedgerClient(c *Container) (ledgerclient.Client, error) {
	v, err := c.Get(ServiceLedger)
	if err != nil {
		return nil, err
	}
	cl, ok := v.(ledgerclient.Client)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a ledgerclient.Client", ServiceLedger)
	}
	return cl, nil
}

func (p *Provider) getBuilder(c *Container) (*payload.Builder, error) {
	v, err := c.Get(ServiceBuilder)
	if err != nil {
		return nil, err
	}
	b, ok := v.(*payload.Builder)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a *payload.Builder", ServiceBuilder)
	}
	return b, nil
}

func (p *Provider) getLLMService(c *Container) (*llm.Service, error) {
	v, err := c.Get(ServiceLLM)
	if err != nil {
		return nil, err
	}
	s, ok := v.(*llm.Service)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a *llm.Service", ServiceLLM)
	}
	return s, nil
}

func (p *Provider) getScorer(c *Container) (*review.Scorer, error) {
	v, err := c.Get(ServiceScorer)
	if err != nil {
		return nil, err
	}
	s, ok := v.(*review.Scorer)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a *review.Scorer", ServiceScorer)
	}
	return s, nil
}

// GetConfig returns the configuration from the container.
func (p *Provider) GetConfig() *config.Config {
	return p.config
}

// Store returns the state store from the container, building it on first use.
func (p *Provider) Store() (store.Store, error) {
	return p.getStore(p.container)
}

// Reconciler returns the reconciliation orchestrator from the container.
func (p *Provider) Reconciler() (*reconcile.Orchestrator, error) {
	v, err := p.container.Get(ServiceReconcile)
	if err != nil {
		return nil, err
	}
	o, ok := v.(*reconcile.Orchestrator)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a *reconcile.Orchestrator", ServiceReconcile)
	}
	return o, nil
}

// Queue returns the AI job queue from the container.
func (p *Provider) Queue() (*queue.Queue, error) {
	v, err := p.container.Get(ServiceQueue)
	if err != nil {
		return nil, err
	}
	q, ok := v.(*queue.Queue)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a *queue.Queue", ServiceQueue)
	}
	return q, nil
}

// DMSClient returns the document-management-system client from the container.
func (p *Provider) DMSClient() (dmsclient.Client, error) {
	return p.getDMSClient(p.container)
}

// Extractor returns the extraction strategy router from the container.
func (p *Provider) Extractor() (*extractor.Router, error) {
	v, err := p.container.Get(ServiceExtractor)
	if err != nil {
		return nil, err
	}
	r, ok := v.(*extractor.Router)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a *extractor.Router", ServiceExtractor)
	}
	return r, nil
}

// Scorer returns the confidence scorer from the container.
func (p *Provider) Scorer() (*review.Scorer, error) {
	return p.getScorer(p.container)
}

// ReviewWorkflow returns the extraction review workflow from the container.
func (p *Provider) ReviewWorkflow() (*review.Workflow, error) {
	v, err := p.container.Get(ServiceReview)
	if err != nil {
		return nil, err
	}
	w, ok := v.(*review.Workflow)
	if !ok {
		return nil, fmt.Errorf("di: %s is not a *review.Workflow", ServiceReview)
	}
	return w, nil
}
