// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	MetricsNamespace         = "company_search"
	MetricsSubsystemSystem   = "system"
	MetricsSubsystemHTTP     = "http"
	MetricsSubsystemAPI      = "api"
	MetricsSubsystemLLM      = "llm"
	MetricsSubsystemEngine   = "engine"
	MetricsSubsystemPipeline = "pipeline"
	MetricsSubsystemCache    = "cache"

	MetricsVersionLabel = "version"
)

type Metrics interface {
	GetRegistry() *prometheus.Registry

	ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64)

	IncrementHTTPRequests()
	IncrementHTTPErrors()

	IncrementLLMRequests(stage, outcome string)
	ObserveLLMRequestDuration(stage string, elapsed float64)

	ObserveEngineRequestDuration(index, operation string, elapsed float64)
	IncrementEngineErrors(index, operation string)

	IncrementCanonicalizerMisses(segment string)
	IncrementPipelineFallbacks(stage string)

	IncrementCacheHits()
	IncrementCacheMisses()
	IncrementCacheEvictions()
}

type InstanceInfo struct {
	Version string
}

// metrics used to instrumentate metrics in prometheus.
type metrics struct {
	registry *prometheus.Registry

	serviceStartTime prometheus.Gauge
	serviceInfo      prometheus.Gauge

	apiTime *prometheus.HistogramVec

	httpRequestsTotal prometheus.Counter
	httpErrorsTotal   prometheus.Counter

	llmRequestsTotal *prometheus.CounterVec
	llmRequestTime   *prometheus.HistogramVec

	engineRequestTime *prometheus.HistogramVec
	engineErrorsTotal *prometheus.CounterVec

	canonicalizerMissesTotal *prometheus.CounterVec
	pipelineFallbacksTotal   *prometheus.CounterVec

	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
	cacheEvictionsTotal prometheus.Counter
}

// NewMetrics Factory method to create a new metrics collector.
func NewMetrics(info InstanceInfo) Metrics {
	m := &metrics{}

	m.registry = prometheus.NewRegistry()
	options := collectors.ProcessCollectorOpts{
		Namespace: MetricsNamespace,
	}
	m.registry.MustRegister(collectors.NewProcessCollector(options))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.serviceStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSystem,
		Name:      "service_start_timestamp_seconds",
		Help:      "The time the service started.",
	})
	m.serviceStartTime.SetToCurrentTime()
	m.registry.MustRegister(m.serviceStartTime)

	m.serviceInfo = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSystem,
		Name:      "service_info",
		Help:      "The service version.",
		ConstLabels: map[string]string{
			MetricsVersionLabel: info.Version,
		},
	})
	m.serviceInfo.Set(1)
	m.registry.MustRegister(m.serviceInfo)

	m.apiTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystemAPI,
			Name:      "time_seconds",
			Help:      "Time to execute the api handler",
		},
		[]string{"handler", "method", "status_code"},
	)
	m.registry.MustRegister(m.apiTime)

	m.httpRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemHTTP,
		Name:      "requests_total",
		Help:      "The total number of http API requests.",
	})
	m.registry.MustRegister(m.httpRequestsTotal)

	m.httpErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemHTTP,
		Name:      "errors_total",
		Help:      "The total number of http API errors.",
	})
	m.registry.MustRegister(m.httpErrorsTotal)

	m.llmRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemLLM,
		Name:      "requests_total",
		Help:      "The total number of language model requests by pipeline stage.",
	}, []string{"stage", "outcome"})
	m.registry.MustRegister(m.llmRequestsTotal)

	m.llmRequestTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemLLM,
		Name:      "request_time_seconds",
		Help:      "Time spent in language model calls by pipeline stage.",
	}, []string{"stage"})
	m.registry.MustRegister(m.llmRequestTime)

	m.engineRequestTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemEngine,
		Name:      "request_time_seconds",
		Help:      "Time spent in search engine round trips.",
	}, []string{"index", "operation"})
	m.registry.MustRegister(m.engineRequestTime)

	m.engineErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemEngine,
		Name:      "errors_total",
		Help:      "The total number of search engine errors.",
	}, []string{"index", "operation"})
	m.registry.MustRegister(m.engineErrorsTotal)

	m.canonicalizerMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemPipeline,
		Name:      "canonicalizer_misses_total",
		Help:      "Raw values no canonical vocabulary entry matched.",
	}, []string{"segment"})
	m.registry.MustRegister(m.canonicalizerMissesTotal)

	m.pipelineFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemPipeline,
		Name:      "fallbacks_total",
		Help:      "Stages that degraded to their neutral result.",
	}, []string{"stage"})
	m.registry.MustRegister(m.pipelineFallbacksTotal)

	m.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemCache,
		Name:      "hits_total",
		Help:      "Explanation cache hits.",
	})
	m.registry.MustRegister(m.cacheHitsTotal)

	m.cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemCache,
		Name:      "misses_total",
		Help:      "Explanation cache misses.",
	})
	m.registry.MustRegister(m.cacheMissesTotal)

	m.cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemCache,
		Name:      "evictions_total",
		Help:      "Explanation cache LRU evictions.",
	})
	m.registry.MustRegister(m.cacheEvictionsTotal)

	return m
}

func (m *metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {
	if m != nil {
		m.apiTime.With(prometheus.Labels{"handler": handler, "method": method, "status_code": statusCode}).Observe(elapsed)
	}
}

func (m *metrics) IncrementHTTPRequests() {
	if m != nil {
		m.httpRequestsTotal.Inc()
	}
}

func (m *metrics) IncrementHTTPErrors() {
	if m != nil {
		m.httpErrorsTotal.Inc()
	}
}

func (m *metrics) IncrementLLMRequests(stage, outcome string) {
	if m != nil {
		m.llmRequestsTotal.With(prometheus.Labels{"stage": stage, "outcome": outcome}).Inc()
	}
}

func (m *metrics) ObserveLLMRequestDuration(stage string, elapsed float64) {
	if m != nil {
		m.llmRequestTime.With(prometheus.Labels{"stage": stage}).Observe(elapsed)
	}
}

func (m *metrics) ObserveEngineRequestDuration(index, operation string, elapsed float64) {
	if m != nil {
		m.engineRequestTime.With(prometheus.Labels{"index": index, "operation": operation}).Observe(elapsed)
	}
}

func (m *metrics) IncrementEngineErrors(index, operation string) {
	if m != nil {
		m.engineErrorsTotal.With(prometheus.Labels{"index": index, "operation": operation}).Inc()
	}
}

func (m *metrics) IncrementCanonicalizerMisses(segment string) {
	if m != nil {
		m.canonicalizerMissesTotal.With(prometheus.Labels{"segment": segment}).Inc()
	}
}

func (m *metrics) IncrementPipelineFallbacks(stage string) {
	if m != nil {
		m.pipelineFallbacksTotal.With(prometheus.Labels{"stage": stage}).Inc()
	}
}

func (m *metrics) IncrementCacheHits() {
	if m != nil {
		m.cacheHitsTotal.Inc()
	}
}

func (m *metrics) IncrementCacheMisses() {
	if m != nil {
		m.cacheMissesTotal.Inc()
	}
}

func (m *metrics) IncrementCacheEvictions() {
	if m != nil {
		m.cacheEvictionsTotal.Inc()
	}
}
