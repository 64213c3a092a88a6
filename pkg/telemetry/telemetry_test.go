package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("orchestrator").
		WithCycleID("c-1").
		WithPhase("inventory").
		WithLocation("L1", "Downtown").
		Info("phase done")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}

	want := map[string]string{
		"component":   "orchestrator",
		"cycle_id":    "c-1",
		"phase":       "inventory",
		"location_id": "L1",
		"message":     "phase done",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("field %s = %v, want %s", k, entry[k], v)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info message written at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn message missing: %q", buf.String())
	}
}

func TestLoggerContextRoundTrip(t *testing.T) {
	logger := NewNopLogger().WithField("k", "v")
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("FromContext did not return the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("FromContext on empty context should return a usable logger")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.Logging.Level = "chatty"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log level")
	}

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "jaeger"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported exporter")
	}

	cfg = DefaultConfig()
	cfg.Tracing.SamplingRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sampling rate above 1")
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordCycleStarted("sync")
	m.RecordCycleCompleted("sync", "success", time.Second)
	m.RecordPhase("inventory", time.Second)
	m.RecordLocationResult("inventory", false, "auth")
	m.AddItemsSynced("inventory", 3)
	m.RecordAPICall("backoffice", "success", time.Millisecond)
	m.RecordReauthentication("acct")
	m.RecordNetworkRetry("pos")
	m.SetLocations(2)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestMetricsExposition(t *testing.T) {
	cfg := DefaultConfig().Metrics
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordAPICall("backoffice", "auth_error", 10*time.Millisecond)
	m.RecordReauthentication("north")
	m.AddItemsSynced("inventory", 52)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`posbridge_api_calls_total{outcome="auth_error",service="backoffice"} 1`,
		`posbridge_reauthentications_total{account="north"} 1`,
		`posbridge_items_synced_total{phase="inventory"} 52`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestDisabledMetrics(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordAPICall("pos", "success", time.Millisecond)
	if m.Registry() != nil {
		t.Error("disabled metrics should not create a registry")
	}
	if err := m.StartMetricsServer(context.Background(), NewNopLogger()); err != nil {
		t.Errorf("StartMetricsServer on disabled metrics: %v", err)
	}
}

func TestNopTracerSpans(t *testing.T) {
	tr := NewNopTracer()
	ctx, span := tr.StartCycleSpan(context.Background(), "c-1", "sync")
	_, child := tr.StartPhaseSpan(ctx, "inventory", 2)
	EndSpan(child, errors.New("boom"))
	EndSpan(span, nil)

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
