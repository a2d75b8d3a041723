package preflight

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"phishguard/internal/config"
	"phishguard/internal/database"
	"phishguard/internal/reading"
	"phishguard/internal/services"
)

// Check statuses
const (
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusWarning = "warning"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string
	Message string
	Error   error
}

// Pinger is an optional backing service
type Pinger interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name   string
	pinger Pinger
}

// Checker performs pre-flight checks before the server starts accepting readers
type Checker struct {
	db           *database.DB
	cfg          *config.Config
	dependencies []dependency
	timeout      time.Duration
}

// NewChecker creates a new preflight checker
func NewChecker(db *database.DB, cfg *config.Config) *Checker {
	return &Checker{
		db:      db,
		cfg:     cfg,
		timeout: 5 * time.Second,
	}
}

// AddDependency registers an optional service. An unreachable dependency
// is reported as a warning, not a failure.
func (c *Checker) AddDependency(name string, p Pinger) {
	c.dependencies = append(c.dependencies, dependency{name: name, pinger: p})
}

// RunAll runs all preflight checks and logs a summary
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(),
		c.checkDatabaseSchema(),
		c.checkReadingPolicy(),
		c.checkReportURL(),
		c.checkDigestSchedule(),
	}
	for _, dep := range c.dependencies {
		results = append(results, c.checkDependency(dep))
	}

	passed, failed, warnings := 0, 0, 0
	for _, result := range results {
		switch result.Status {
		case StatusPass:
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case StatusFail:
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case StatusWarning:
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)
	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return true
		}
	}
	return false
}

func (c *Checker) checkDatabaseConnection() CheckResult {
	if err := c.db.Ping(); err != nil {
		return CheckResult{
			Name:    "Database Connection",
			Status:  StatusFail,
			Message: "Cannot connect to database",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Database Connection",
		Status:  StatusPass,
		Message: fmt.Sprintf("Connected (%s)", c.db.Dialect),
	}
}

func (c *Checker) checkDatabaseSchema() CheckResult {
	requiredTables := []string{"reading_verdicts", "training_assignments"}

	for _, table := range requiredTables {
		exists, err := c.db.TableExists(table)
		if err != nil || !exists {
			return CheckResult{
				Name:    "Database Schema",
				Status:  StatusFail,
				Message: fmt.Sprintf("Required table '%s' not found", table),
				Error:   err,
			}
		}
	}
	return CheckResult{
		Name:    "Database Schema",
		Status:  StatusPass,
		Message: fmt.Sprintf("All %d required tables exist", len(requiredTables)),
	}
}

func (c *Checker) checkReadingPolicy() CheckResult {
	rc := c.cfg.Reading
	if rc.PolicyFile != "" {
		if _, err := os.Stat(rc.PolicyFile); err != nil {
			return CheckResult{
				Name:    "Reading Policy",
				Status:  StatusFail,
				Message: fmt.Sprintf("Policy file %s is not readable", rc.PolicyFile),
				Error:   err,
			}
		}
	}

	th := c.cfg.Thresholds()
	if _, err := reading.NewPolicy(rc.Policy, th); err != nil {
		return CheckResult{
			Name:    "Reading Policy",
			Status:  StatusWarning,
			Message: fmt.Sprintf("Unknown policy %q, %s will be used", rc.Policy, reading.PolicyCorroborated),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Reading Policy",
		Status:  StatusPass,
		Message: fmt.Sprintf("%s policy, %.2fs per word", rc.Policy, th.MinSecondsPerWord),
	}
}

func (c *Checker) checkReportURL() CheckResult {
	raw := c.cfg.Reading.ReportURL
	if raw == "" {
		return CheckResult{
			Name:    "Verdict Delivery",
			Status:  StatusPass,
			Message: "Verdicts recorded in-process",
		}
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return CheckResult{
			Name:    "Verdict Delivery",
			Status:  StatusFail,
			Message: fmt.Sprintf("READING_REPORT_URL %q is not an http(s) URL", raw),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Verdict Delivery",
		Status:  StatusPass,
		Message: fmt.Sprintf("Verdicts delivered to %s", u.Host),
	}
}

func (c *Checker) checkDigestSchedule() CheckResult {
	expr := c.cfg.Training.DigestCron
	if expr == "" {
		return CheckResult{
			Name:    "Training Digest",
			Status:  StatusWarning,
			Message: "Digest disabled",
		}
	}
	if _, err := services.ParseDigestCron(expr); err != nil {
		return CheckResult{
			Name:    "Training Digest",
			Status:  StatusFail,
			Message: "Invalid TRAINING_DIGEST_CRON",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Training Digest",
		Status:  StatusPass,
		Message: fmt.Sprintf("Scheduled %q", expr),
	}
}

func (c *Checker) checkDependency(dep dependency) CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := dep.pinger.Ping(ctx); err != nil {
		return CheckResult{
			Name:    dep.name,
			Status:  StatusWarning,
			Message: "Unreachable, features depending on it are disabled",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    dep.name,
		Status:  StatusPass,
		Message: "Reachable",
	}
}
