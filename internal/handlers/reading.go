package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"phishguard/internal/models"
	"phishguard/internal/services"
)

// PolicyInfoSource describes the live evaluation policy
type PolicyInfoSource interface {
	Info() models.ReadingPolicyInfo
}

// ReadingHandler handles reading verdict reports and lookups
type ReadingHandler struct {
	verdicts *services.VerdictService
	policies PolicyInfoSource
}

// NewReadingHandler creates a new reading handler
func NewReadingHandler(verdicts *services.VerdictService, policies PolicyInfoSource) *ReadingHandler {
	return &ReadingHandler{
		verdicts: verdicts,
		policies: policies,
	}
}

// SubmitVerdict records a reading report
// POST /api/reading/verdict
// Accepts application/json and text/plain bodies; navigator.sendBeacon sends the latter.
func (h *ReadingHandler) SubmitVerdict(c *fiber.Ctx) error {
	payload := c.Body()
	if len(payload) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing payload",
		})
	}

	var report models.ReadingReport
	if err := json.Unmarshal(payload, &report); err != nil {
		log.Printf("⚠️  [VERDICT] Invalid report payload from %s: %v", c.IP(), err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload format",
		})
	}

	resp, err := h.verdicts.Submit(c.UserContext(), report)
	if err != nil {
		if errors.Is(err, services.ErrInvalidReport) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		log.Printf("❌ [VERDICT] Failed to record report for %s: %v", report.TrackingID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record reading verdict",
		})
	}

	return c.JSON(resp)
}

// GetVerdict returns the latest verdict for a tracking id
// GET /api/reading/verdicts/:trackingId
func (h *ReadingHandler) GetVerdict(c *fiber.Ctx) error {
	trackingID := strings.TrimSpace(c.Params("trackingId"))
	if trackingID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "trackingId is required",
		})
	}

	record, err := h.verdicts.Latest(c.UserContext(), trackingID)
	if err != nil {
		if errors.Is(err, services.ErrVerdictNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No reading verdict for this tracking id",
			})
		}
		log.Printf("❌ [VERDICT] Failed to load verdict for %s: %v", trackingID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load reading verdict",
		})
	}

	return c.JSON(record)
}

// GetPolicy returns the live policy name and thresholds
// GET /api/reading/policy
func (h *ReadingHandler) GetPolicy(c *fiber.Ctx) error {
	return c.JSON(h.policies.Info())
}
