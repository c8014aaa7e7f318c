// internal/domain/events/publisher.go
package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the log instead of a broker. Used when Kafka is disabled.
type LogPublisher struct {
	logger logrus.FieldLogger
}

// NewLogPublisher creates a publisher that only logs
func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event at info level
func (p *LogPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	p.logger.WithFields(logrus.Fields{
		"topic":   topic,
		"key":     key,
		"payload": payload,
	}).Info("Event published")
	return nil
}

// Message is one captured publish call
type Message struct {
	Topic   string
	Key     string
	Payload interface{}
}

// Recorder keeps every published event in memory
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent publishes return err without recording
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Publish records the event
func (r *Recorder) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, Message{Topic: topic, Key: key, Payload: payload})
	return nil
}

// Messages returns a copy of everything published so far
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// OnTopic returns the payloads published to topic, in order
func (r *Recorder) OnTopic(topic string) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for _, m := range r.messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}
