// Package pipeline wires the producer side of the benchmark: dispatcher,
// result collector, timeout reaper, and sink, all sharing one correlation
// table with a lifecycle bound to a single run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streambench/inferbench/internal/bus"
	"github.com/streambench/inferbench/internal/collect"
	configpkg "github.com/streambench/inferbench/internal/config"
	"github.com/streambench/inferbench/internal/correlation"
	"github.com/streambench/inferbench/internal/dispatch"
	"github.com/streambench/inferbench/internal/envelope"
	errspkg "github.com/streambench/inferbench/internal/errors"
	"github.com/streambench/inferbench/internal/logging"
	"github.com/streambench/inferbench/internal/sink"
	"github.com/streambench/inferbench/transport"
)

// Dependencies holds the collaborators a Pipeline needs beyond its config.
type Dependencies struct {
	// Source yields the items to dispatch. Required.
	Source dispatch.ItemSource

	// Store persists matched records. Nil disables persistence.
	Store sink.Store

	// Transport overrides the registry-built transport. The caller keeps
	// ownership and must close it. Mainly used with the in-memory channel
	// transport, where the stage must share the same instance.
	Transport *transport.Transport

	// Registry receives the Prometheus instruments when metrics are enabled.
	// Nil uses the default registerer.
	Registry *prometheus.Registry
}

// Report is the final accounting of a run. Every dispatched item resolves to
// exactly one of matched, evicted, or send-failed; anything still in flight
// at an external cancel is reported, never silently leaked.
type Report struct {
	RunID      string
	Dispatched int64
	Matched    int64
	Evicted    int64
	SendFailed int64
	InFlight   int64
	Summary    sink.Summary
	Histogram  []sink.HistogramBucket
}

// Pipeline owns one benchmark run.
type Pipeline struct {
	cfg    *configpkg.Config
	logger logging.ServiceLogger
	runID  string

	table         *correlation.Table
	sink          *sink.Sink
	latencyLog    *sink.LatencyLog
	metrics       *sink.Metrics
	gatherer      prometheus.Gatherer
	metricsServer *http.Server

	transport     transport.Transport
	ownsTransport bool

	dispatcher *dispatch.Dispatcher
	collector  *collect.Collector
	reaper     *correlation.Reaper

	tally *tally
}

// New builds a pipeline for the supplied configuration. The context is only
// used while constructing the transport.
func New(ctx context.Context, cfg *configpkg.Config, logger logging.ServiceLogger, deps Dependencies) (*Pipeline, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if deps.Source == nil {
		return nil, errspkg.ErrSourceRequired
	}
	if deps.Transport != nil && (deps.Transport.Publisher == nil || deps.Transport.Subscriber == nil) {
		return nil, errspkg.ErrTransportRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		runID:  uuid.NewString(),
		table:  correlation.NewTable(),
		tally:  newTally(),
	}

	logger.Info("creating pipeline", logging.LogFields{
		"run_id":        p.runID,
		"pubsub_system": cfg.PubSubSystem,
		"input_topic":   cfg.InputTopic,
		"result_topic":  cfg.ResultTopic,
		"match_timeout": cfg.MatchTimeout.String(),
	})

	if cfg.MetricsEnabled {
		if deps.Registry != nil {
			p.metrics = sink.NewMetrics(deps.Registry)
			p.gatherer = deps.Registry
		} else {
			p.metrics = sink.NewMetrics(prometheus.DefaultRegisterer)
			p.gatherer = prometheus.DefaultGatherer
		}
	}

	if cfg.LatencyLogFile != "" {
		latencyLog, err := sink.OpenLatencyLog(cfg.LatencyLogFile)
		if err != nil {
			return nil, err
		}
		p.latencyLog = latencyLog
	}

	if deps.Transport != nil {
		p.transport = *deps.Transport
	} else {
		built, err := transport.Build(ctx, cfg, logging.NewWatermillAdapter(logger))
		if err != nil {
			return nil, fmt.Errorf("build transport: %w", err)
		}
		p.transport = built
		p.ownsTransport = true
	}

	aggregator := sink.NewAggregator()
	p.sink = sink.New(deps.Store, aggregator, p.latencyLog, p.metrics, logger)

	publisher := bus.NewRetryingPublisher(p.transport.Publisher, cfg.PublishMaxRetries, logger)

	dispatcher, err := dispatch.New(dispatch.Config{
		Publisher:     publisher,
		Table:         p.table,
		Source:        deps.Source,
		Topic:         cfg.InputTopic,
		Interval:      cfg.SendInterval,
		Limit:         cfg.TotalItems,
		RunID:         p.runID,
		Logger:        logger,
		Metrics:       p.metrics,
		OnDispatched:  p.tally.onDispatched,
		OnSendFailure: func(envelope.Item) { p.tally.onSendFailed() },
	})
	if err != nil {
		return nil, err
	}
	p.dispatcher = dispatcher

	collector, err := collect.New(collect.Config{
		Subscriber: p.transport.Subscriber,
		Table:      p.table,
		Sink:       p.sink,
		Topic:      cfg.ResultTopic,
		Logger:     logger,
		Metrics:    p.metrics,
		Timeout:    cfg.MatchTimeout,
		OnMatched:  p.tally.onMatched,
		OnEvicted:  p.tally.onEvicted,
	})
	if err != nil {
		return nil, err
	}
	p.collector = collector

	p.reaper = correlation.NewReaper(p.table, cfg.MatchTimeout, cfg.ReapInterval, func(req correlation.OutstandingRequest) {
		p.sink.AcceptLost(req.CorrelationID)
		p.tally.onEvicted()
	}, logger)

	return p, nil
}

// RunID identifies this pipeline run; it is stamped into envelope metadata.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes the benchmark until every dispatched item is accounted for or
// ctx is cancelled, whichever comes first, then drains and reports.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.startMetricsServer()

	// The result subscription must exist before the first publish; without
	// it a fast result on a non-retaining transport would be lost.
	if err := p.collector.Subscribe(runCtx); err != nil {
		p.close()
		return Report{RunID: p.runID}, err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.collector.Run(runCtx); err != nil {
			p.logger.Error("result collector stopped with error", err, nil)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reaper.Run(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.dispatcher.Run(runCtx); err != nil {
			p.logger.Error("dispatcher stopped with error", err, nil)
		}
		p.tally.dispatchFinished()
	}()

	select {
	case <-runCtx.Done():
		p.logger.Info("pipeline cancelled, draining", logging.LogFields{"run_id": p.runID})
	case <-p.tally.completed():
		p.logger.Info("all dispatched items accounted for", logging.LogFields{"run_id": p.runID})
	}

	// Stop the units: the dispatcher quits issuing sends, the collector
	// drains its subscription, the reaper runs one final sweep.
	cancel()
	wg.Wait()

	report := p.buildReport()
	p.close()
	return report, nil
}

func (p *Pipeline) buildReport() Report {
	remaining := p.table.Drain()
	for _, req := range remaining {
		p.logger.Info("request still in flight at shutdown", logging.LogFields{
			"correlation_id": req.CorrelationID,
			"item_id":        req.Item.ID,
			"age":            req.Age().String(),
		})
	}

	dispatched, matched, evicted, sendFailed := p.tally.counts()
	report := Report{
		RunID:      p.runID,
		Dispatched: dispatched,
		Matched:    matched,
		Evicted:    evicted,
		SendFailed: sendFailed,
		InFlight:   int64(len(remaining)),
		Summary:    p.sink.Aggregator().Summarize(),
		Histogram:  p.sink.Aggregator().Histogram(),
	}

	p.logger.Info("run complete", logging.LogFields{
		"run_id":      report.RunID,
		"dispatched":  report.Dispatched,
		"matched":     report.Matched,
		"evicted":     report.Evicted,
		"send_failed": report.SendFailed,
		"in_flight":   report.InFlight,
		"mean":        report.Summary.Mean.String(),
		"p95":         report.Summary.P95.String(),
	})
	return report
}

func (p *Pipeline) startMetricsServer() {
	if !p.cfg.MetricsEnabled || p.cfg.MetricsPort <= 0 {
		return
	}

	mux := http.NewServeMux()
	if p.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	addr := fmt.Sprintf(":%d", p.cfg.MetricsPort)
	p.metricsServer = &http.Server{Addr: addr, Handler: mux}
	p.logger.Info("starting metrics server", logging.LogFields{"address": addr})
	go func() {
		if err := p.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("metrics server stopped", err, logging.LogFields{"address": addr})
		}
	}()
}

func (p *Pipeline) close() {
	if p.metricsServer != nil {
		// Releases the port so a later run in the same process can bind it.
		if err := p.metricsServer.Close(); err != nil {
			p.logger.Error("failed to close metrics server", err, nil)
		}
	}
	if p.latencyLog != nil {
		if err := p.latencyLog.Close(); err != nil {
			p.logger.Error("failed to close latency log", err, nil)
		}
	}
	if p.ownsTransport {
		if err := p.transport.Publisher.Close(); err != nil {
			p.logger.Error("failed to close publisher", err, nil)
		}
		if err := p.transport.Subscriber.Close(); err != nil {
			p.logger.Error("failed to close subscriber", err, nil)
		}
	}
}
