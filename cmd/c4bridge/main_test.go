package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/c4-bridge/internal/api"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/config"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/logging"
)

const testSecret = "test-secret-for-development-only-0123456789"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func minimalConfig(baseURL, dbPath string) string {
	return `
controller:
  base_url: "` + baseURL + `"
  refresh: 0

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

homekit:
  enabled: false

api:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

security:
  jwt:
    secret: "` + testSecret + `"
`
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(configEnvVar, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingControllerURL verifies validation errors stop startup.
func TestRun_MissingControllerURL(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv(configEnvVar, writeConfig(t, minimalConfig("", dbPath)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a controller base URL")
	}
	if !strings.Contains(err.Error(), "controller.base_url") {
		t.Errorf("error = %v, want controller.base_url validation", err)
	}
}

// TestRun_StartupAndShutdown runs the bridge against a fake controller with
// every optional subsystem disabled.
func TestRun_StartupAndShutdown(t *testing.T) {
	var requests atomic.Int32
	ctrl := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ctrl.Close()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv(configEnvVar, writeConfig(t, minimalConfig(ctrl.URL, dbPath)))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if requests.Load() == 0 {
		t.Error("controller was never queried for devices")
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

// TestRunToken verifies the token subcommand signs with the configured secret.
func TestRunToken(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv(configEnvVar, writeConfig(t, minimalConfig("http://127.0.0.1:9000/c4", dbPath)))

	var out bytes.Buffer
	if err := runToken([]string{"installer"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}

	claims, err := api.ParseToken(testSecret, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "installer" {
		t.Errorf("subject = %q, want installer", claims.Subject)
	}
}

// TestRunToken_NoSecret verifies tokens are refused when auth is disabled.
func TestRunToken_NoSecret(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	cfg := strings.Replace(minimalConfig("http://127.0.0.1:9000/c4", dbPath), testSecret, "", 1)
	t.Setenv(configEnvVar, writeConfig(t, cfg))

	var out bytes.Buffer
	if err := runToken(nil, &out); err == nil {
		t.Fatal("runToken() should fail without a JWT secret")
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing", out.String())
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv(configEnvVar, "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv(configEnvVar, expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// teardownLog records the order shutdown steps ran in.
type teardownLog struct {
	steps []string
}

func (l *teardownLog) Stop() { l.steps = append(l.steps, "publisher") }

func (l *teardownLog) Close() error {
	l.steps = append(l.steps, "client")
	return nil
}

func TestStopMQTTStopsBridgeFirst(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")

	rec := &teardownLog{}
	stopBridge := func() { rec.steps = append(rec.steps, "bridge") }
	stopMQTT(stopBridge, rec, rec, log)

	want := []string{"bridge", "publisher", "client"}
	if strings.Join(rec.steps, ",") != strings.Join(want, ",") {
		t.Errorf("teardown order = %v, want %v", rec.steps, want)
	}
	if !strings.Contains(buf.String(), "disconnecting from MQTT") {
		t.Errorf("log = %q", buf.String())
	}
}
