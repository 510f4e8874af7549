// Package ingest is the inbound boundary: it subscribes to the telemetry
// topics, normalizes ordering per session, and hands samples to the trip
// engine one at a time.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-engine/internal/models"
	"github.com/ukydev/trip-engine/internal/trip"
)

// reorderDepth is how many samples per session the boundary holds back to
// absorb transport reordering.
const reorderDepth = 4

// Subscriber consumes samples and end-of-trip signals over MQTT.
type Subscriber struct {
	client      mqtt.Client
	engine      *trip.Engine
	buffer      *ReorderBuffer
	sampleTopic string
	endTopic    string
	idleFlush   time.Duration
}

// NewSubscriber connects to the broker and returns a subscriber ready to
// Start. idleFlush bounds how long a silent session's held-back samples wait
// before they are force-released; sessions the reconciler closes for
// staleness get no end signal, so their tail still has to reach the store.
func NewSubscriber(broker, clientID, sampleTopic, endTopic string, idleFlush time.Duration, engine *trip.Engine) (*Subscriber, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", token.Error())
	}
	if idleFlush <= 0 {
		idleFlush = time.Minute
	}
	return &Subscriber{
		client:      client,
		engine:      engine,
		buffer:      NewReorderBuffer(reorderDepth),
		sampleTopic: sampleTopic,
		endTopic:    endTopic,
		idleFlush:   idleFlush,
	}, nil
}

// Start subscribes to the sample and end topics.
func (s *Subscriber) Start(ctx context.Context) error {
	if token := s.client.Subscribe(s.sampleTopic, 1, func(_ mqtt.Client, m mqtt.Message) {
		s.handleSample(ctx, m)
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s failed: %w", s.sampleTopic, token.Error())
	}
	if token := s.client.Subscribe(s.endTopic, 1, func(_ mqtt.Client, m mqtt.Message) {
		s.handleEnd(ctx, m)
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s failed: %w", s.endTopic, token.Error())
	}
	go s.sweepLoop(ctx)
	log.WithFields(log.Fields{
		"sample_topic": s.sampleTopic,
		"end_topic":    s.endTopic,
	}).Info("telemetry subscriber started")
	return nil
}

// sweepLoop periodically releases the held-back samples of sessions that have
// gone silent, so every received sample lands in the store even when no end
// signal ever arrives.
func (s *Subscriber) sweepLoop(ctx context.Context) {
	interval := s.idleFlush / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for sessionID, samples := range s.buffer.Sweep(time.Now().Add(-s.idleFlush)) {
				log.WithFields(log.Fields{
					"session_id": sessionID,
					"samples":    len(samples),
				}).Debug("releasing idle session buffer")
				for _, sample := range samples {
					s.process(ctx, sample)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	s.client.Disconnect(250)
}

func (s *Subscriber) handleSample(ctx context.Context, m mqtt.Message) {
	var sample models.TelemetrySample
	if err := json.Unmarshal(m.Payload(), &sample); err != nil {
		log.WithError(err).WithField("topic", m.Topic()).Warn("malformed sample dropped")
		return
	}
	if sample.SessionID == "" {
		sample.SessionID = sessionFromTopic(m.Topic())
	}
	if sample.SessionID == "" || sample.Timestamp.IsZero() {
		log.WithField("topic", m.Topic()).Warn("sample without session or timestamp dropped")
		return
	}
	for _, ready := range s.buffer.Add(sample) {
		s.process(ctx, ready)
	}
}

func (s *Subscriber) handleEnd(ctx context.Context, m mqtt.Message) {
	sessionID := sessionFromTopic(m.Topic())
	if sessionID == "" {
		return
	}
	for _, ready := range s.buffer.Flush(sessionID) {
		s.process(ctx, ready)
	}
	if err := s.engine.EndTrip(ctx, sessionID); err != nil {
		log.WithError(err).WithField("session_id", sessionID).Error("failed to end trip")
	}
}

func (s *Subscriber) process(ctx context.Context, sample models.TelemetrySample) {
	if err := s.engine.ProcessSample(ctx, sample); err != nil {
		log.WithError(err).WithField("session_id", sample.SessionID).Error("failed to process sample")
	}
}

// sessionFromTopic extracts the trailing session segment of a topic like
// telemetry/sample/<session>.
func sessionFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
