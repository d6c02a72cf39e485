package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decode outcomes used as the outcome label.
const (
	OutcomeOK              = "ok"
	OutcomeEnvelope        = "envelope"
	OutcomeTypeCode        = "type_code"
	OutcomeUnknownSchema   = "unknown_schema"
	OutcomeSchemaAuthoring = "schema_authoring"
	OutcomeFraming         = "framing"
	OutcomeError           = "error"
)

// Transports used as the transport label.
const (
	TransportHTTP = "http"
	TransportTCP  = "tcp"
)

const unknownTypeCode = "-"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wireconv",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wireconv",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	decodeMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wireconv",
			Subsystem: "decode",
			Name:      "messages_total",
			Help:      "Messages decoded, by type code and outcome.",
		},
		[]string{"service", "transport", "type_code", "outcome"},
	)
	decodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wireconv",
			Subsystem: "decode",
			Name:      "duration_seconds",
			Help:      "Message decode duration in seconds.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		},
		[]string{"service", "transport", "outcome"},
	)
	schemaReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wireconv",
			Subsystem: "schema",
			Name:      "reloads_total",
			Help:      "Schema index reload attempts.",
		},
		[]string{"service", "success"},
	)
	schemaTypeCodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wireconv",
			Subsystem: "schema",
			Name:      "type_codes",
			Help:      "Type codes in the published schema index.",
		},
		[]string{"service"},
	)
	tcpConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wireconv",
			Subsystem: "tcp",
			Name:      "open_connections",
			Help:      "Open TCP intake connections.",
		},
		[]string{"service"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			decodeMessages, decodeDuration,
			schemaReloads, schemaTypeCodes,
			tcpConnections,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDecode counts one decode attempt. The type code label is only kept
// for outcomes where the code matched a schema, which bounds its cardinality.
func RecordDecode(service, transport, typeCode, outcome string, duration time.Duration) {
	RegisterMetrics()
	if typeCode == "" || (outcome != OutcomeOK && outcome != OutcomeSchemaAuthoring) {
		typeCode = unknownTypeCode
	}
	decodeMessages.WithLabelValues(service, transport, typeCode, outcome).Inc()
	decodeDuration.WithLabelValues(service, transport, outcome).Observe(duration.Seconds())
}

func RecordSchemaReload(service string, typeCodes int, success bool) {
	RegisterMetrics()
	schemaReloads.WithLabelValues(service, strconv.FormatBool(success)).Inc()
	if success {
		schemaTypeCodes.WithLabelValues(service).Set(float64(typeCodes))
	}
}

func TCPConnectionOpened(service string) {
	RegisterMetrics()
	tcpConnections.WithLabelValues(service).Inc()
}

func TCPConnectionClosed(service string) {
	RegisterMetrics()
	tcpConnections.WithLabelValues(service).Dec()
}
