// Package notify publishes newly created attendance records to MQTT.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kozaktomas/attendance-cam/internal/attendance"
	"github.com/kozaktomas/attendance-cam/internal/config"
	"github.com/kozaktomas/attendance-cam/internal/constants"
)

const qos byte = 1

// Event is the published payload.
type Event struct {
	StudentID  string            `json:"student_id"`
	Date       string            `json:"date"`
	Session    string            `json:"session"`
	Status     attendance.Status `json:"status"`
	Label      string            `json:"label"`
	Source     string            `json:"source"`
	ObservedAt *time.Time        `json:"observed_at,omitempty"`
}

// NewEvent builds the payload for rec.
func NewEvent(rec attendance.Record) Event {
	return Event{
		StudentID:  rec.SubjectID,
		Date:       rec.Date,
		Session:    rec.Session,
		Status:     rec.Status,
		Label:      rec.Status.Label(),
		Source:     rec.Source,
		ObservedAt: rec.ObservedAt,
	}
}

type publishFunc func(topic string, payload []byte) error

// MQTTNotifier implements attendance.Notifier. Notify only queues the event;
// a background goroutine publishes it.
type MQTTNotifier struct {
	client  mqtt.Client
	topic   string
	publish publishFunc
	queue   chan Event

	mu        sync.RWMutex
	published uint64
	dropped   uint64
	errors    uint64

	done chan struct{}
}

// Stats contains notifier statistics
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

// Connect dials the broker and starts the publishing goroutine.
func Connect(cfg config.MQTTConfig) (*MQTTNotifier, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt connection established", "broker", broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	n := newNotifier(cfg.Topic, func(topic string, payload []byte) error {
		t := client.Publish(topic, qos, false, payload)
		if !t.WaitTimeout(2 * time.Second) {
			return fmt.Errorf("publish timeout")
		}
		return t.Error()
	})
	n.client = client
	return n, nil
}

func newNotifier(topic string, publish publishFunc) *MQTTNotifier {
	n := &MQTTNotifier{
		topic:   strings.TrimSuffix(topic, "/"),
		publish: publish,
		queue:   make(chan Event, constants.EventChannelBuffer),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

// Topic returns the topic an event for session is published to.
func (n *MQTTNotifier) Topic(session string) string {
	return n.topic + "/" + session
}

// Notify queues rec for publishing. Events are dropped when the queue is full.
func (n *MQTTNotifier) Notify(_ context.Context, rec attendance.Record) {
	select {
	case n.queue <- NewEvent(rec):
	default:
		n.mu.Lock()
		n.dropped++
		n.mu.Unlock()
		slog.Warn("mqtt queue full, dropping attendance event", "student_id", rec.SubjectID)
	}
}

func (n *MQTTNotifier) run() {
	defer close(n.done)
	for ev := range n.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			n.countError()
			continue
		}
		topic := n.Topic(ev.Session)
		if err := n.publish(topic, payload); err != nil {
			n.countError()
			slog.Warn("mqtt publish failed", "topic", topic, "error", err)
			continue
		}
		n.mu.Lock()
		n.published++
		n.mu.Unlock()
		slog.Debug("attendance event published", "topic", topic, "student_id", ev.StudentID)
	}
}

func (n *MQTTNotifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// Stats returns notifier statistics
func (n *MQTTNotifier) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Stats{Published: n.published, Dropped: n.dropped, Errors: n.errors}
}

// Close drains queued events and disconnects. Notify must not be called afterwards.
func (n *MQTTNotifier) Close() error {
	close(n.queue)
	<-n.done
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	return nil
}
