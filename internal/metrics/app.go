package metrics

import (
	"strconv"
	"time"

	"github.com/modlens/modlens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Fetch pipeline metrics
	FetchTotal        = "app_fetch_total"
	FetchDuration     = "app_fetch_duration_ms"
	FetchRetriesTotal = "app_fetch_retries_total"

	// Admission metrics
	AdmissionDeniedTotal = "app_admission_denied_total"
	TokenBucketLevel     = "app_token_bucket_tokens"

	// Sweep metrics
	SweepTotal         = "app_sweep_total"
	SweepKeysSubmitted = "app_sweep_keys_submitted"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordFetch records a completed fetch attempt with its outcome
// (fetched, failed, rate_limited, already_in_flight).
func RecordFetch(outcome string, priority string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		labels := map[string]string{
			"outcome":  outcome,
			"priority": priority,
		}

		_ = observability.TelemetrySystem.Counter(
			FetchTotal,
			1,
			labels,
		)

		if duration > 0 {
			_ = observability.TelemetrySystem.Histogram(
				FetchDuration,
				duration,
				labels,
			)
		}
	}
}

// RecordFetchRetry records a retry scheduled after a transient failure.
// Attempt counts are bounded by the retry ceiling, so cardinality stays low.
func RecordFetchRetry(attempt int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			FetchRetriesTotal,
			1,
			map[string]string{
				"attempt": strconv.Itoa(attempt),
			},
		)
	}
}

// RecordAdmissionDenied records a request refused by the token bucket
func RecordAdmissionDenied(priority string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			AdmissionDeniedTotal,
			1,
			map[string]string{
				"priority": priority,
			},
		)
	}
}

// SetTokenBucketLevel records the current token count
func SetTokenBucketLevel(tokens float64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			TokenBucketLevel,
			tokens,
			nil,
		)
	}
}

// RecordSweep records a background sweep pass and how many stale keys it submitted
func RecordSweep(submitted int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			SweepTotal,
			1,
			nil,
		)

		_ = observability.TelemetrySystem.Gauge(
			SweepKeysSubmitted,
			float64(submitted),
			nil,
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
