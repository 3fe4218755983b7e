// Package mqtt publishes finished dispatch schedules to an MQTT broker so
// site controllers can follow the planned battery setpoints. Publishing is
// optional; a run without a broker configured skips it entirely.
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dmolinero/pvbess/infra/logger"
)

// Setpoint is one step of the published schedule. PowerMW is positive when
// the battery charges and negative when it discharges.
type Setpoint struct {
	Time    time.Time `json:"time"`
	PowerMW float64   `json:"power_mw"`
}

// Schedule is the full message published after a run.
type Schedule struct {
	MessageID string     `json:"message_id"`
	RunID     string     `json:"run_id"`
	IssuedAt  time.Time  `json:"issued_at"`
	Setpoints []Setpoint `json:"setpoints"`
}

// Publisher delivers dispatch schedules.
type Publisher interface {
	PublishSchedule(s Schedule) error
	Disconnect()
}

// pahoClient is the slice of the Paho API the publisher uses; narrowed so
// tests can substitute a fake.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoPublisher implements Publisher over an Eclipse Paho connection.
type PahoPublisher struct {
	cli        pahoClient
	topic      string
	qos        byte
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

// NewPahoPublisher connects to the broker described by the config.
func NewPahoPublisher(cfg Config) (*PahoPublisher, error) {
	opts, err := cfg.clientOptions()
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt-publisher")
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &PahoPublisher{
		cli:        c,
		topic:      cfg.Topic,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
	}, nil
}

// PublishSchedule serializes the schedule and publishes it with retries and
// exponential backoff. A missing MessageID is filled with a fresh UUID.
func (p *PahoPublisher) PublishSchedule(s Schedule) error {
	if s.MessageID == "" {
		s.MessageID = uuid.New().String()
	}
	if s.IssuedAt.IsZero() {
		s.IssuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}

	backoff := p.backoff
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		token := p.cli.Publish(p.topic, p.qos, false, payload)
		if token.Wait() && token.Error() != nil {
			lastErr = token.Error()
			p.log.Warnf("publish attempt %d failed: %v", attempt+1, lastErr)
			continue
		}
		p.log.Infof("published schedule %s (%d setpoints) to %s", s.MessageID, len(s.Setpoints), p.topic)
		return nil
	}
	return fmt.Errorf("publish schedule after %d attempts: %w", p.maxRetries+1, lastErr)
}

// Disconnect closes the broker connection.
func (p *PahoPublisher) Disconnect() {
	if p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

// MockPublisher records published schedules for tests.
type MockPublisher struct {
	mu        sync.Mutex
	Schedules []Schedule
	Fail      bool
}

// NewMockPublisher creates an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishSchedule(s Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Schedules = append(m.Schedules, s)
	return nil
}

func (m *MockPublisher) Disconnect() {}
