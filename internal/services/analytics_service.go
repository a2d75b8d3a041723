package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"phishguard/internal/database"
	"phishguard/internal/models"
)

// AnalyticsService keeps an append-only history of reading reports in MongoDB.
// Without a MongoDB connection every call is a no-op.
type AnalyticsService struct {
	mongoDB *database.MongoDB
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(mongoDB *database.MongoDB) *AnalyticsService {
	return &AnalyticsService{
		mongoDB: mongoDB,
	}
}

// ReadingSnapshot is one received report together with the recomputed verdict
type ReadingSnapshot struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrackingID string             `bson:"trackingId" json:"trackingId"`
	Trigger    string             `bson:"trigger,omitempty" json:"trigger,omitempty"`

	TimeSpentSeconds   float64 `bson:"timeSpent" json:"timeSpent"`
	WordCount          int     `bson:"wordCount" json:"wordCount"`
	ScrollDepthPercent float64 `bson:"scrollDepth" json:"scrollDepth"`
	FocusTimeSeconds   float64 `bson:"focusTime" json:"focusTime"`
	BlurCount          int     `bson:"blurCount" json:"blurCount"`
	ScrollEvents       int     `bson:"scrollEvents" json:"scrollEvents"`
	SecondsPerWord     float64 `bson:"secondsPerWord" json:"secondsPerWord"`
	WordsPerMinute     float64 `bson:"wordsPerMinute" json:"wordsPerMinute"`

	FastRead       bool   `bson:"fastRead" json:"fastRead"`
	ClientFastRead bool   `bson:"clientFastRead" json:"clientFastRead"`
	Reason         string `bson:"reason,omitempty" json:"reason,omitempty"`
	Policy         string `bson:"policy" json:"policy"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Enabled reports whether snapshots are persisted
func (s *AnalyticsService) Enabled() bool {
	return s != nil && s.mongoDB != nil
}

// RecordSnapshot appends a snapshot for a received report
func (s *AnalyticsService) RecordSnapshot(ctx context.Context, report models.ReadingReport, record *models.ReadingVerdictRecord) error {
	if !s.Enabled() {
		return nil
	}

	snapshot := newReadingSnapshot(report, record)
	if _, err := s.collection().InsertOne(ctx, snapshot); err != nil {
		log.Printf("⚠️  [ANALYTICS] Failed to record reading snapshot for %s: %v", report.TrackingID, err)
		return err
	}
	return nil
}

func newReadingSnapshot(report models.ReadingReport, record *models.ReadingVerdictRecord) *ReadingSnapshot {
	return &ReadingSnapshot{
		TrackingID:         record.TrackingID,
		Trigger:            report.Trigger,
		TimeSpentSeconds:   record.TimeSpentSeconds,
		WordCount:          record.WordCount,
		ScrollDepthPercent: record.ScrollDepthPercent,
		FocusTimeSeconds:   record.FocusTimeSeconds,
		BlurCount:          record.BlurCount,
		ScrollEvents:       report.ScrollEvents,
		SecondsPerWord:     record.SecondsPerWord,
		WordsPerMinute:     record.WordsPerMinute,
		FastRead:           record.FastRead,
		ClientFastRead:     record.ClientFastRead,
		Reason:             record.Reason,
		Policy:             record.Policy,
		CreatedAt:          record.UpdatedAt,
	}
}

// FlaggedByReason counts flagged snapshots per reason since the given time
func (s *AnalyticsService) FlaggedByReason(ctx context.Context, since time.Time) (map[string]int64, error) {
	result := make(map[string]int64)
	if !s.Enabled() {
		return result, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fastRead": true, "createdAt": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$reason", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Reason string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot counts: %w", err)
	}
	for _, row := range rows {
		result[row.Reason] = row.Count
	}
	return result, nil
}

func (s *AnalyticsService) collection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionReadingSnapshots)
}
