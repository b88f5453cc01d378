package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"claimant-consumer/internal/broker"
	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/crypto"
	"claimant-consumer/internal/logger"
	"claimant-consumer/internal/orchestrator"
	"claimant-consumer/internal/processor"
	"claimant-consumer/internal/sink"
	"claimant-consumer/internal/transformer"
	"claimant-consumer/pkg/bootstrap"
	"claimant-consumer/pkg/cel"
	"claimant-consumer/pkg/circuitbreaker"
	"claimant-consumer/pkg/health"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	db             *sql.DB
	registry       *prometheus.Registry
	tracerProvider *tracing.TracerProvider
	orchestrator   *orchestrator.Orchestrator
	pusher         *metrics.Pusher
	health         *health.CheckerRegistry
	server         *http.Server
	kafkaTLS       *tls.Config
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:   bootstrap.NewBase(cfg, log),
		health: health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	metrics.Register(a.registry)
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	securityTLS, err := crypto.TLSConfig(a.Config.Security.CertFile, a.Config.Security.KeyFile, a.Config.Security.CAFile)
	if err != nil {
		return fmt.Errorf("failed to load security material: %w", err)
	}
	if a.Config.Kafka.UseTLS {
		a.kafkaTLS = securityTLS
		if a.kafkaTLS == nil {
			a.kafkaTLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	aws, err := crypto.NewAWSClients(ctx, a.Config.AWS.Region, a.Config.AWS.Endpoint)
	if err != nil {
		return err
	}
	secrets := crypto.NewSecretRepository(aws.SecretsManager, a.Config.AWS.SecretsRetry.Policy(), a.Logger)

	proc, err := a.initProcessor(aws)
	if err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	a.InitBroker(a.kafkaTLS)
	a.health.Register(health.NewKafkaChecker(a.Config.Kafka.Brokers, broker.NewTransport(a.kafkaTLS)))

	success, err := a.initSuccessSink(ctx, secrets)
	if err != nil {
		return fmt.Errorf("failed to initialize success sink: %w", err)
	}
	failure := sink.NewDeadLetterSink(a.Producer, a.Config.Kafka.DLQTopic, a.Logger)

	pattern, err := regexp.Compile(a.Config.Kafka.TopicRegex)
	if err != nil {
		return fmt.Errorf("invalid topic regex: %w", err)
	}
	a.orchestrator = orchestrator.New(orchestrator.Config{
		TopicPattern:        pattern,
		PollDuration:        a.Config.Kafka.PollDuration,
		SubscribeRetryDelay: a.Config.Kafka.SubscribeRetryDelay,
	}, a.Consumer, proc, success, failure, a.Logger)

	if pg := a.Config.Metrics.Pushgateway; pg.Enabled {
		a.pusher = metrics.NewPusher(pg.URL, pg.Job, pg.Instance, a.registry, pg.Interval, pg.DeleteOnShutdown, a.Logger)
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initProcessor(aws *crypto.AWSClients) (*processor.Processor, error) {
	httpClient, err := crypto.NewHTTPClient(crypto.HTTPClientConfig{
		Timeout:        a.Config.DKS.Timeout,
		ConnectTimeout: a.Config.DKS.ConnectTimeout,
		CertFile:       a.Config.Security.CertFile,
		KeyFile:        a.Config.Security.KeyFile,
		CAFile:         a.Config.Security.CAFile,
	})
	if err != nil {
		return nil, err
	}

	var breaker *circuitbreaker.Wrapper
	if cb := a.Config.CircuitBreaker; cb.Enabled {
		breaker = circuitbreaker.NewWrapper(crypto.DataKeyBreakerConfig(circuitbreaker.Config{
			Name:         metrics.DependencyDKS,
			MaxRequests:  cb.MaxRequests,
			Interval:     cb.Interval,
			Timeout:      cb.Timeout,
			FailureRatio: cb.FailureRatio,
			MinRequests:  cb.MinRequests,
			OnStateChange: func(name string, from, to gobreaker.State) {
				a.Logger.Warnw("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}))
		a.health.Register(health.NewCircuitBreakerChecker(breaker))
	}
	dataKeys := crypto.NewDataKeyClient(httpClient, a.Config.DKS.URL, a.Config.DKS.Retry.Policy(), breaker, a.Logger)

	salts := crypto.NewSaltRepository(aws.SSM, a.Config.AWS.SaltParameterName, a.Config.AWS.SSMRetry.Policy(), a.Logger)
	kms := crypto.NewKMSDataKeyRepository(aws.KMS, a.Config.AWS.CMKAlias, a.Config.AWS.DataKeySpec, a.Config.AWS.KMSRetry.Policy(), a.Logger)
	encryption := crypto.NewEncryptionService(kms, a.Config.Cipher.MaxKeyUsage, a.Config.Cipher.InitialisationVectorSize)

	src := a.Config.Source
	transformers := transformer.NewRegistry()
	transformers.Register(src.ClaimantTopic, transformer.NewClaimant(salts))
	transformers.Register(src.ContractTopic, transformer.NewContract())
	transformers.Register(src.StatementTopic, transformer.NewStatement(encryption))

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create filter evaluator: %w", err)
	}

	topics := make(map[string]processor.TopicSettings, len(src.Topics))
	for _, t := range src.Topics {
		filters, err := evaluator.CompileFilters(t.FilterRules)
		if err != nil {
			return nil, fmt.Errorf("invalid filter rules for %s: %w", t.Name, err)
		}
		topics[t.Name] = processor.TopicSettings{IDField: t.IDField, Filters: filters}
	}

	return processor.New(processor.Config{
		SchemaLocation: a.Config.Validation.SchemaLocation,
		ClaimantTopic:  src.ClaimantTopic,
		Topics:         topics,
	}, dataKeys, transformers, a.Logger)
}

func (a *App) initSuccessSink(ctx context.Context, secrets bootstrap.SecretSource) (sink.SuccessSink, error) {
	switch a.Config.Sink.Type {
	case constants.SinkTypePostgres:
		connector := bootstrap.NewDatabaseConnector(a.Config.Database.Postgres, secrets, a.Logger)
		db, err := connector.InitPostgreSQL(ctx)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.health.Register(health.NewPostgreSQLChecker(db))

		if a.Config.Database.RunMigrations {
			if err := bootstrap.RunMigrations(db, a.Logger); err != nil {
				return nil, err
			}
		}

		tables := make(map[string]sink.Table, len(a.Config.Source.Topics))
		for _, t := range a.Config.Source.Topics {
			tables[t.Name] = sink.Table{Name: t.Table, NaturalID: t.NaturalID}
		}
		return sink.NewPostgresSink(db, tables, a.Logger), nil
	case constants.SinkTypeQueue:
		return sink.NewQueueSink(a.Producer, a.Logger), nil
	default:
		return sink.NewConsoleSink(a.Logger), nil
	}
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.health.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
}

// Run serves HTTP and consumes until ctx ends or the orchestrator stops.
// The orchestrator stopping, cleanly or not, stops everything else.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.pusher != nil {
		g.Go(func() error {
			return a.pusher.Run(gCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return a.orchestrator.Run(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("postgres close error: %w", err))
			}
		}

		return errors.Join(errs...)
	})
}
