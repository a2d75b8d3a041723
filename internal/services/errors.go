package services

import "errors"

var (
	// ErrInvalidReport is returned when a reading report fails validation
	ErrInvalidReport = errors.New("invalid reading report")
	// ErrVerdictNotFound is returned when no verdict exists for a tracking id
	ErrVerdictNotFound = errors.New("reading verdict not found")
	// ErrAssignmentNotFound is returned when no training assignment exists for a tracking id
	ErrAssignmentNotFound = errors.New("training assignment not found")
	// ErrInvalidCron is returned for an unparseable digest schedule
	ErrInvalidCron = errors.New("invalid cron expression")
)
