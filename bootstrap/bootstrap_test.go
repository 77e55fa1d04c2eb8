package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/coworkbill/app"
	"github.com/artpar/coworkbill/bootstrap"
	"github.com/artpar/coworkbill/config"
	"github.com/artpar/coworkbill/domain/billing"
	"github.com/rs/zerolog"
)

func loadConfig(t *testing.T, content string) (*config.Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg, path
}

func newApp(t *testing.T, opts bootstrap.Options) *bootstrap.App {
	t.Helper()
	nop := zerolog.Nop()
	opts.Logger = &nop
	a, err := bootstrap.New(opts)
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a
}

func TestBootstrap_MemoryIntegration(t *testing.T) {
	cfg, _ := loadConfig(t, `
store:
  driver: memory
billing:
  check_interval: 1h
`)
	a := newApp(t, bootstrap.Options{Config: cfg, Version: "test"})

	if a.Store == nil || a.HTTPServer == nil || a.Scheduler == nil {
		t.Fatal("components should be initialized")
	}
	if a.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %s, want 0.0.0.0:8080", a.HTTPServer.Addr)
	}

	ctx := context.Background()
	if err := a.Store.UpsertTenant(ctx, billing.Tenant{ID: "T", Name: "Ada"}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	if _, err := a.Billing.CreateBill(ctx, app.CreateInput{
		TenantID:         "T",
		AssignedResource: "A12",
		Amount:           300,
		StartDate:        "2020-01-01",
	}); err != nil {
		t.Fatalf("CreateBill: %v", err)
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var report app.CheckReport
	deadline := time.Now().Add(3 * time.Second)
	for {
		var ok bool
		if report, ok = a.Scheduler.LastReport(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial check did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if report.MarkedOverdue != 1 || report.Generated != 1 {
		t.Errorf("report = %+v, want 1 overdue and 1 generated", report)
	}

	rec := httptest.NewRecorder()
	a.HTTPServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/billing/T", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("history status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.HTTPServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.HTTPServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404 when disabled", rec.Code)
	}
}

func TestBootstrap_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "bills.db")
	cfg, _ := loadConfig(t, "store:\n  driver: sqlite\n  dsn: "+dsn+"\n")

	a := newApp(t, bootstrap.Options{Config: cfg})

	if err := a.Store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if _, err := os.Stat(dsn); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestBootstrap_NoConfig(t *testing.T) {
	if _, err := bootstrap.New(bootstrap.Options{}); err == nil {
		t.Error("expected error without configuration")
	}
}

func TestBootstrap_ApplyConfig(t *testing.T) {
	cfg, _ := loadConfig(t, "store:\n  driver: memory\n")
	a := newApp(t, bootstrap.Options{Config: cfg})

	updated := *cfg
	updated.Billing.CheckInterval = 5 * time.Minute
	updated.Billing.Periods = []config.PeriodConfig{{Name: "Weekly", Days: 7}}
	a.ApplyConfig(&updated)

	if got := a.Scheduler.Interval(); got != 5*time.Minute {
		t.Errorf("Interval = %v, want 5m", got)
	}
	if !a.Recurring.Calendar().Known("Weekly") {
		t.Error("calendar should include Weekly after reload")
	}
	if a.Config() != &updated {
		t.Error("Config() should return the applied config")
	}
}

func TestBootstrap_HolderReload(t *testing.T) {
	_, path := loadConfig(t, "store:\n  driver: memory\nbilling:\n  check_interval: 1h\n")
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}

	a := newApp(t, bootstrap.Options{Holder: h})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(path, []byte("store:\n  driver: memory\nbilling:\n  check_interval: 2h\n  concurrency: 1\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := a.Scheduler.Interval(); got != 2*time.Hour {
		t.Errorf("Interval = %v, want 2h", got)
	}
}
