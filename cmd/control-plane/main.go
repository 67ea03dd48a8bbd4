package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus"

	"bastion/internal/analytics"
	"bastion/internal/config"
	"bastion/internal/dns"
	"bastion/internal/domain"
	"bastion/internal/httpapi"
	"bastion/internal/incident"
	"bastion/internal/logging"
	"bastion/internal/notify"
	"bastion/internal/observability"
	"bastion/internal/probe"
	"bastion/internal/regions"
	"bastion/internal/rollout"
	"bastion/internal/scanner"
	"bastion/internal/store"
	"bastion/internal/substrate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New("control-plane").Fatalf("config: %v", err)
	}
	logger := logging.New("control-plane")

	st, err := store.Open(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	observability.Start(ctx, cfg.MetricsAddr, logger, reg, st.Ready)

	gateway := buildGateway(ctx, cfg, logger, metrics)
	invoker := buildInvoker(ctx, cfg, logger)
	steering := buildSteering(ctx, cfg, logger)
	catalog := regions.Default()

	httpProbe := probe.NewHTTPProbe(probe.Config{
		EndpointTemplate: cfg.ProbeEndpointTemplate,
		Timeout:          cfg.ProbeTimeout,
	}, logger)

	orch := rollout.NewOrchestrator(st, invoker, httpProbe, steering, catalog, gateway, rollout.Config{
		Domain: cfg.AppDomain,
		DefaultRollback: domain.RollbackConfig{
			Enabled:                true,
			HealthCheckThreshold:   cfg.HealthCheckThreshold,
			RollbackTimeoutMinutes: cfg.RollbackTimeoutMinutes,
		},
		DefaultRecovery: domain.DisasterRecovery{
			Enabled:    true,
			RTOMinutes: cfg.RTOMinutes,
			RPOMinutes: cfg.RPOMinutes,
		},
		InterPhaseDelay: cfg.InterPhaseDelay,
		CanaryDelay:     cfg.CanaryDelay,
		ProbeTimeout:    cfg.ProbeTimeout,
	}, logger, metrics)
	if err := orch.Recover(ctx); err != nil {
		logger.Printf("recovering deployments: %v", err)
	}

	signals := scanner.NewInMemorySignals()
	scan := scanner.New(signals, scanner.Thresholds{}, logger, metrics)

	engine := incident.NewEngine(st, gateway,
		incident.DefaultResponders(invoker), incident.GenericResponder(invoker),
		incident.Config{
			SLAMinutes:          cfg.IncidentResponseSLAMinutes,
			AutoResponseEnabled: cfg.AutoResponseEnabled,
			EventTTL:            cfg.ThreatEventTTL,
		}, logger, metrics)

	analyzer := analytics.NewEngine(st, analytics.Config{
		SLAMinutes: cfg.IncidentResponseSLAMinutes,
	}, logger, metrics)

	api := httpapi.NewServer(logger, st, orch, engine, scan, analyzer, signals, cfg.MonitoredRegions, cfg.AdminToken)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Printf("control-plane listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down control-plane")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)

	_ = os.Stdout.Sync()
}

func buildGateway(ctx context.Context, cfg config.Config, logger *logging.Logger, metrics *observability.Metrics) *notify.Gateway {
	var publishers []notify.Publisher

	if cfg.SNSTopicARN != "" {
		awsCfg, err := substrate.LoadAWSConfig(ctx, substrate.AWSConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKey,
			SecretAccessKey: cfg.AWSSecretKey,
			SessionToken:    cfg.AWSSession,
		})
		if err != nil {
			logger.Fatalf("aws config for sns: %v", err)
		}
		pub, err := notify.NewSNSPublisher(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN)
		if err != nil {
			logger.Fatalf("sns publisher: %v", err)
		}
		publishers = append(publishers, pub)
	}

	if cfg.SlackToken != "" {
		pub, err := notify.NewSlackPublisher(cfg.SlackToken, cfg.SlackChannel)
		if err != nil {
			logger.Fatalf("slack publisher: %v", err)
		}
		publishers = append(publishers, pub)
	}

	if len(publishers) == 0 {
		logger.Println("no alert publishers configured, alerts go to the log only")
		publishers = append(publishers, notify.NewNoopPublisher(logger))
	}

	return notify.NewGateway(logger, metrics, 10*time.Second, publishers...)
}

func buildInvoker(ctx context.Context, cfg config.Config, logger *logging.Logger) substrate.Invoker {
	if cfg.AWSRegion == "" {
		logger.Println("no AWS region configured, using noop execution substrate")
		return substrate.NewNoopInvoker(logger)
	}
	invoker, err := substrate.NewLambdaInvoker(ctx, substrate.AWSConfig{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKey,
		SecretAccessKey: cfg.AWSSecretKey,
		SessionToken:    cfg.AWSSession,
	}, cfg.HandlerPrefix)
	if err != nil {
		logger.Fatalf("lambda invoker: %v", err)
	}
	return invoker
}

func buildSteering(ctx context.Context, cfg config.Config, logger *logging.Logger) dns.Provider {
	switch cfg.DNSProvider {
	case "route53":
		provider, err := dns.NewRoute53Provider(ctx, logger, dns.Route53ProviderConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKey,
			SecretAccessKey: cfg.AWSSecretKey,
			SessionToken:    cfg.AWSSession,
		})
		if err != nil {
			logger.Fatalf("route53 provider: %v", err)
		}
		return provider
	case "cloudflare":
		provider, err := dns.NewCloudflareProvider(cfg.CloudflareAPIToken, cfg.CloudflareZoneID, logger)
		if err != nil {
			logger.Fatalf("cloudflare provider: %v", err)
		}
		return provider
	default:
		logger.Println("no DNS provider configured, failover steering is a noop")
		return dns.NewNoopProvider(logger)
	}
}
