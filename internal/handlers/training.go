package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"phishguard/internal/services"
)

// TrainingHandler serves reinforced training assignments
type TrainingHandler struct {
	training *services.TrainingService
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(training *services.TrainingService) *TrainingHandler {
	return &TrainingHandler{training: training}
}

// GetAssignment returns the assignment for a tracking id
// GET /api/training/assignments/:trackingId
func (h *TrainingHandler) GetAssignment(c *fiber.Ctx) error {
	trackingID := strings.TrimSpace(c.Params("trackingId"))

	assignment, err := h.training.Assignment(c.UserContext(), trackingID)
	if err != nil {
		if errors.Is(err, services.ErrAssignmentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No training assignment for this tracking id",
			})
		}
		log.Printf("❌ [TRAINING] Failed to load assignment for %s: %v", trackingID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load training assignment",
		})
	}

	return c.JSON(assignment)
}

// ListPending returns assignments waiting to be assigned
// GET /api/training/assignments
func (h *TrainingHandler) ListPending(c *fiber.Ctx) error {
	pending, err := h.training.Pending(c.UserContext())
	if err != nil {
		log.Printf("❌ [TRAINING] Failed to list pending assignments: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list training assignments",
		})
	}

	return c.JSON(fiber.Map{
		"assignments": pending,
		"count":       len(pending),
	})
}
