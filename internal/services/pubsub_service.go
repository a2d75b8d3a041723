package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Pub/sub channels
const (
	ChannelReadingVerdicts     = "reading:verdicts"
	ChannelTrainingAssignments = "training:assignments"
)

// Pub/sub message types
const (
	MessageVerdictRecorded    = "verdict_recorded"
	MessageTrainingScheduled  = "training_scheduled"
	MessageTrainingAssigned   = "training_assigned"
	MessageTrainingDigestDone = "training_digest"
)

// Publisher publishes events for the notification side
type Publisher interface {
	Publish(ctx context.Context, channel, msgType, trackingID string, payload map[string]interface{}) error
}

// PubSubService manages Redis pub/sub for cross-instance communication
type PubSubService struct {
	redis      *RedisService
	pubsub     *redis.PubSub
	handlers   map[string][]MessageHandler
	mu         sync.RWMutex
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

// MessageHandler is a callback for handling pub/sub messages
type MessageHandler func(channel string, message *PubSubMessage)

// PubSubMessage represents a message sent via pub/sub
type PubSubMessage struct {
	Type       string                 `json:"type"`
	TrackingID string                 `json:"trackingId,omitempty"`
	InstanceID string                 `json:"instanceId"` // Source instance ID
	Payload    map[string]interface{} `json:"payload"`
}

// NewPubSubService creates a new pub/sub service
func NewPubSubService(redisService *RedisService, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:      redisService,
		handlers:   make(map[string][]MessageHandler),
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Subscribe registers a handler for a channel or pattern such as "reading:*"
func (s *PubSubService) Subscribe(pattern string, handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[pattern] = append(s.handlers[pattern], handler)
	log.Printf("📡 [PUBSUB] Subscribed to pattern: %s", pattern)
}

// Start begins listening for pub/sub messages
func (s *PubSubService) Start() error {
	s.pubsub = s.redis.Client().PSubscribe(s.ctx, "reading:*", "training:*")

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return err
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Started listening for messages (instance: %s)", s.instanceID)
	return nil
}

func (s *PubSubService) processMessages() {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

// dispatch decodes a payload and fans it out to matching handlers
func (s *PubSubService) dispatch(channel string, data []byte) {
	var message PubSubMessage
	if err := json.Unmarshal(data, &message); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal message: %v", err)
		return
	}

	// Skip messages from this instance (avoid loops)
	if message.InstanceID == s.instanceID {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for pattern, handlers := range s.handlers {
		if matchPattern(pattern, channel) {
			for _, handler := range handlers {
				go handler(channel, &message)
			}
		}
	}
}

// Publish implements Publisher
func (s *PubSubService) Publish(ctx context.Context, channel, msgType, trackingID string, payload map[string]interface{}) error {
	data, err := json.Marshal(&PubSubMessage{
		Type:       msgType,
		TrackingID: trackingID,
		InstanceID: s.instanceID,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	return s.redis.Client().Publish(ctx, channel, data).Err()
}

// Stop stops the pub/sub service
func (s *PubSubService) Stop() error {
	s.cancel()
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

// matchPattern checks if a channel matches a ':'-separated pattern where
// "*" matches one segment, or a trailing "*" matches the rest
func matchPattern(pattern, channel string) bool {
	if pattern == channel {
		return true
	}

	patternParts := strings.Split(pattern, ":")
	channelParts := strings.Split(channel, ":")

	for i, part := range patternParts {
		if part == "*" && i == len(patternParts)-1 {
			return len(channelParts) >= len(patternParts)
		}
		if i >= len(channelParts) || (part != "*" && part != channelParts[i]) {
			return false
		}
	}
	return len(patternParts) == len(channelParts)
}
