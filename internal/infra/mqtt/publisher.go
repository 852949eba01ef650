// Package mqtt publishes now-playing state to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	paho "github.com/eclipse/paho.mqtt.golang"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/app/nowplaying"
)

// Client is the subset of the broker connection the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close()
}

// Config represents MQTT publisher configuration.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
	Timeout  time.Duration
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// Publisher is a nowplaying.Reporter that keeps the latest snapshot retained
// on Topic and sends errors to Topic/error.
//
// Reporter calls never block: only the newest pending state is kept while the
// broker is slow.
type Publisher struct {
	client Client
	topic  string
	qos    byte

	mu      sync.Mutex
	pending *message // Latest state not yet published
	errs    []message
	wake    chan struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ErrorPayload is published on the error topic.
type ErrorPayload struct {
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// Dial connects to the broker and returns a publisher.
func Dial(cfg Config) (*Publisher, error) {
	client, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return NewPublisher(client, cfg.Topic, cfg.QoS), nil
}

// NewPublisher creates a publisher on an existing connection.
func NewPublisher(client Client, topic string, qos byte) *Publisher {
	p := &Publisher{
		client: client,
		topic:  topic,
		qos:    qos,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Update publishes a snapshot as the retained state.
func (p *Publisher) Update(s nowplaying.Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		zlog.Error().Msgf("mqtt: failed to marshal snapshot: %v", err)
		return
	}
	p.setState(&message{topic: p.topic, retained: true, payload: payload})
}

// ReportError publishes an error notification.
func (p *Publisher) ReportError(err error) {
	payload, mErr := json.Marshal(ErrorPayload{Error: err.Error(), At: time.Now()})
	if mErr != nil {
		return
	}
	p.mu.Lock()
	p.errs = append(p.errs, message{topic: p.topic + "/error", payload: payload})
	p.mu.Unlock()
	p.signal()
}

// Clear removes the retained state.
func (p *Publisher) Clear() {
	p.setState(&message{topic: p.topic, retained: true, payload: []byte{}})
}

// Close flushes pending messages and disconnects.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.client.Close()
	})
}

func (p *Publisher) setState(m *message) {
	p.mu.Lock()
	p.pending = m
	p.mu.Unlock()
	p.signal()
}

func (p *Publisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			p.flush()
			return
		case <-p.wake:
			p.flush()
		}
	}
}

func (p *Publisher) flush() {
	p.mu.Lock()
	state := p.pending
	errs := p.errs
	p.pending = nil
	p.errs = nil
	p.mu.Unlock()

	for _, m := range errs {
		p.publish(m)
	}
	if state != nil {
		p.publish(*state)
	}
}

func (p *Publisher) publish(m message) {
	if err := p.client.Publish(m.topic, p.qos, m.retained, m.payload); err != nil {
		zlog.Warn().Msgf("mqtt: publish failed: topic=%s error=%v", m.topic, err)
	}
}

// pahoClient adapts a paho client to Client.
type pahoClient struct {
	client  paho.Client
	timeout time.Duration
}

func connect(cfg Config) (*pahoClient, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		zlog.Warn().Msgf("mqtt: connection lost: %v", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(timeout) && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "failed to connect to %s", cfg.Broker)
	} else if !client.IsConnected() {
		return nil, errors.Newf("timed out connecting to %s", cfg.Broker)
	}
	zlog.Info().Msgf("mqtt: connected: broker=%s topic=%s", cfg.Broker, cfg.Topic)
	return &pahoClient{client: client, timeout: timeout}, nil
}

func (c *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.timeout) {
		return errors.Newf("timed out publishing to %s", topic)
	}
	return token.Error()
}

func (c *pahoClient) Close() {
	c.client.Disconnect(250)
}
