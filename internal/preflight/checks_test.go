package preflight

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"phishguard/internal/config"
	"phishguard/internal/database"
	"phishguard/internal/reading"
)

func setupPreflightTest(t *testing.T) (*database.DB, *config.Config) {
	db, err := database.New(filepath.Join(t.TempDir(), "test_preflight.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	cfg := &config.Config{
		Reading: config.ReadingConfig{
			MinSecondsPerWord: reading.DefaultMinSecondsPerWord,
			Policy:            reading.PolicyCorroborated,
		},
		Training: config.TrainingConfig{DigestCron: "0 8 * * 1"},
	}
	return db, cfg
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func findResult(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("No result named %q", name)
	return CheckResult{}
}

func TestRunAll_Pass(t *testing.T) {
	db, cfg := setupPreflightTest(t)

	results := NewChecker(db, cfg).RunAll()
	if HasFailures(results) {
		t.Errorf("Expected no failures, got %+v", results)
	}
	if len(results) != 5 {
		t.Errorf("Expected 5 results, got %d", len(results))
	}
}

func TestCheckDatabaseConnection_Failure(t *testing.T) {
	db, cfg := setupPreflightTest(t)
	db.Close() // simulate a lost connection

	result := NewChecker(db, cfg).checkDatabaseConnection()
	if result.Status != StatusFail {
		t.Errorf("Expected status 'fail', got '%s'", result.Status)
	}
	if result.Error == nil {
		t.Error("Expected error to be set")
	}
}

func TestCheckDatabaseSchema_MissingTable(t *testing.T) {
	db, cfg := setupPreflightTest(t)
	if _, err := db.Exec("DROP TABLE training_assignments"); err != nil {
		t.Fatalf("Failed to drop table: %v", err)
	}

	result := NewChecker(db, cfg).checkDatabaseSchema()
	if result.Status != StatusFail {
		t.Errorf("Expected status 'fail', got '%s'", result.Status)
	}
}

func TestCheckReadingPolicy(t *testing.T) {
	db, cfg := setupPreflightTest(t)

	cfg.Reading.Policy = "strict"
	if r := NewChecker(db, cfg).checkReadingPolicy(); r.Status != StatusWarning {
		t.Errorf("Expected warning for unknown policy, got %s", r.Status)
	}

	cfg.Reading.Policy = reading.PolicyRate
	cfg.Reading.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	if r := NewChecker(db, cfg).checkReadingPolicy(); r.Status != StatusFail {
		t.Errorf("Expected failure for missing policy file, got %s", r.Status)
	}
}

func TestCheckReportURL(t *testing.T) {
	tests := []struct {
		url    string
		status string
	}{
		{"", StatusPass},
		{"https://collab.example.com/api/reading/verdict", StatusPass},
		{"ftp://collab.example.com/verdict", StatusFail},
		{"not a url", StatusFail},
	}

	db, cfg := setupPreflightTest(t)
	for _, tt := range tests {
		cfg.Reading.ReportURL = tt.url
		if r := NewChecker(db, cfg).checkReportURL(); r.Status != tt.status {
			t.Errorf("%q: expected %s, got %s", tt.url, tt.status, r.Status)
		}
	}
}

func TestCheckDigestSchedule(t *testing.T) {
	db, cfg := setupPreflightTest(t)

	cfg.Training.DigestCron = "every monday"
	if r := NewChecker(db, cfg).checkDigestSchedule(); r.Status != StatusFail {
		t.Errorf("Expected failure for bad cron, got %s", r.Status)
	}

	cfg.Training.DigestCron = ""
	if r := NewChecker(db, cfg).checkDigestSchedule(); r.Status != StatusWarning {
		t.Errorf("Expected warning when digest disabled, got %s", r.Status)
	}
}

func TestDependencies_WarnOnly(t *testing.T) {
	db, cfg := setupPreflightTest(t)

	checker := NewChecker(db, cfg)
	checker.AddDependency("MongoDB", stubPinger{})
	checker.AddDependency("Redis", stubPinger{err: errors.New("connection refused")})

	results := checker.RunAll()
	if HasFailures(results) {
		t.Error("Expected unreachable dependency to be a warning only")
	}
	if r := findResult(t, results, "MongoDB"); r.Status != StatusPass {
		t.Errorf("Expected MongoDB pass, got %s", r.Status)
	}
	if r := findResult(t, results, "Redis"); r.Status != StatusWarning {
		t.Errorf("Expected Redis warning, got %s", r.Status)
	}
}
