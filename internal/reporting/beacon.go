// Package reporting delivers reading reports to a remote verdict endpoint.
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"phishguard/internal/models"
)

// DefaultTimeout bounds a single report delivery
const DefaultTimeout = 5 * time.Second

// BeaconClient posts reading reports as JSON, the way the browser's
// sendBeacon would, and decodes the verdict response.
type BeaconClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewBeaconClient creates a client for the given verdict endpoint URL
func NewBeaconClient(endpoint string, timeout time.Duration) *BeaconClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	c := &BeaconClient{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	c.logger.WithField("endpoint", c.endpoint).Info("Reading beacon client initialized")
	return c
}

// Endpoint returns the configured URL
func (c *BeaconClient) Endpoint() string {
	return c.endpoint
}

// Report implements reading.Reporter
func (c *BeaconClient) Report(ctx context.Context, report models.ReadingReport) (*models.ReadingVerdictResponse, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("report rejected: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result models.ReadingVerdictResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"tracking_id": report.TrackingID,
		"trigger":     report.Trigger,
		"fast_read":   result.FastRead,
	}).Debug("Reading report delivered")

	return &result, nil
}
