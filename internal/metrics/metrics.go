package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // ProviderCalls counts outbound provider calls by provider, operation, and outcome
    ProviderCalls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "provider_calls_total", Help: "Outbound provider calls by provider, op, and outcome."},
        []string{"provider", "op", "outcome"},
    )
    // ProviderLatency tracks outbound provider call latencies in milliseconds
    ProviderLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "provider_call_latency_ms", Help: "Provider call latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000}},
        []string{"provider", "op"},
    )
    // WebhookVerifications counts inbound webhook verification results
    WebhookVerifications = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_verifications_total", Help: "Inbound webhook verifications by result."},
        []string{"result"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(ProviderCalls)
        Registry.MustRegister(ProviderLatency)
        Registry.MustRegister(WebhookVerifications)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
