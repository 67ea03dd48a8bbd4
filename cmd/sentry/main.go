// Sentry is the background worker: it runs scheduled threat scans across
// the monitored regions, routes findings through incident processing,
// sweeps SLA deadlines, and expires old threat events.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"bastion/internal/analytics"
	"bastion/internal/config"
	"bastion/internal/incident"
	"bastion/internal/logging"
	"bastion/internal/notify"
	"bastion/internal/observability"
	"bastion/internal/scanner"
	"bastion/internal/store"
	"bastion/internal/substrate"
)

const (
	slaSweepInterval  = time.Minute
	ttlSweepInterval  = time.Hour
	analyticsInterval = 24 * time.Hour
	analyticsWindow   = 24 // hours of history per report
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New("sentry").Fatalf("config: %v", err)
	}
	logger := logging.New("sentry")

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

	registerSchedules(ctx, cfg, logger)
	startIngestServer(ctx, cfg, logger, signals)

	scanTicker := time.NewTicker(time.Duration(cfg.MonitoringIntervalMinutes) * time.Minute)
	slaTicker := time.NewTicker(slaSweepInterval)
	ttlTicker := time.NewTicker(ttlSweepInterval)
	analyticsTicker := time.NewTicker(analyticsInterval)
	defer scanTicker.Stop()
	defer slaTicker.Stop()
	defer ttlTicker.Stop()
	defer analyticsTicker.Stop()

	logger.Printf("sentry watching %d region(s) every %d minute(s)", len(cfg.MonitoredRegions), cfg.MonitoringIntervalMinutes)

	for {
		select {
		case <-ctx.Done():
			logger.Println("shutting down sentry")
			return
		case <-scanTicker.C:
			runScan(ctx, scan, engine, cfg.MonitoredRegions, logger)
		case <-slaTicker.C:
			if breached, err := engine.CheckSLA(ctx); err != nil {
				logger.Printf("sla sweep: %v", err)
			} else if breached > 0 {
				logger.Printf("sla sweep: %d incident(s) past deadline", breached)
			}
		case <-ttlTicker.C:
			if deleted, err := st.DeleteExpiredThreatEvents(ctx, time.Now().UTC()); err != nil {
				logger.Printf("ttl sweep: %v", err)
			} else if deleted > 0 {
				logger.Printf("ttl sweep: expired %d threat event(s)", deleted)
			}
		case <-analyticsTicker.C:
			runAnalytics(ctx, analyzer, logger)
		}
	}
}

func runScan(ctx context.Context, scan *scanner.Scanner, engine *incident.Engine, monitored []string, logger *logging.Logger) {
	events, summary, err := scan.RunScanCycle(ctx, monitored)
	if err != nil {
		logger.Printf("scan cycle: %v", err)
		return
	}
	if summary.Total > 0 {
		logger.Printf("scan cycle found %d threat(s): %v", summary.Total, summary.ByType)
	}
	for _, ev := range events {
		if _, err := engine.ProcessThreat(ctx, ev); err != nil {
			logger.Printf("process threat %s: %v", ev.ThreatID, err)
		}
	}
}

// runAnalytics produces the scheduled daily report. The report goes to
// the log; the underlying events and incidents stay queryable through
// the control plane's analytics endpoint.
func runAnalytics(ctx context.Context, analyzer *analytics.Engine, logger *logging.Logger) {
	report, err := analyzer.Analyze(ctx, analyticsWindow, analytics.ModeComprehensive)
	if err != nil {
		logger.Printf("analytics run: %v", err)
		if report.Summary.TotalEvents == 0 {
			return
		}
	}
	logger.Printf("daily analytics: %d event(s), %d incident(s), risk %s, %d recommendation(s)",
		report.Summary.TotalEvents, report.Summary.TotalIncidents,
		report.Risk.RiskLevel, len(report.Recommendations))
}

// registerSchedules mirrors the scan and SLA cadence into EventBridge
// rules when a handler target is configured, so detached handlers keep
// running even if this process is down.
func registerSchedules(ctx context.Context, cfg config.Config, logger *logging.Logger) {
	if cfg.AWSRegion == "" || cfg.HandlerARNTemplate == "" {
		return
	}
	sched, err := substrate.NewEventBridgeScheduler(ctx, substrate.AWSConfig{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKey,
		SecretAccessKey: cfg.AWSSecretKey,
		SessionToken:    cfg.AWSSession,
	}, cfg.HandlerPrefix, func(handlerID string) string {
		return fmt.Sprintf(cfg.HandlerARNTemplate, handlerID)
	})
	if err != nil {
		logger.Fatalf("eventbridge scheduler: %v", err)
	}
	if err := sched.InvokeOnSchedule(ctx, "threat-scan", cfg.MonitoringIntervalMinutes); err != nil {
		logger.Printf("registering scan schedule: %v", err)
	}
	if err := sched.InvokeOnCron(ctx, "daily-analytics", "0 6 * * ? *"); err != nil {
		logger.Printf("registering analytics schedule: %v", err)
	}
}

type signalSample struct {
	Region string  `json:"region"`
	Kind   string  `json:"kind"`
	Value  float64 `json:"value"`
}

// startIngestServer accepts telemetry samples from regional agents on a
// small dedicated endpoint; the scanner's detectors read the windows the
// samples fill.
func startIngestServer(ctx context.Context, cfg config.Config, logger *logging.Logger, signals *scanner.InMemorySignals) {
	r := chi.NewRouter()
	r.Post("/v1/signals", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Samples []signalSample `json:"samples"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Samples) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, sample := range body.Samples {
			if sample.Region == "" || sample.Kind == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		for _, sample := range body.Samples {
			signals.Record(sample.Region, sample.Kind, sample.Value)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Printf("sentry signal ingest listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("ingest server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
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
