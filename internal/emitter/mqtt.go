// Package emitter publishes motion events to an MQTT broker so external
// automation (recorders, notifiers, the crop consumer's upstream) can react
// without attaching to the frame bus.
package emitter

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/tkoide/framesentry/internal/detect"
)

// MotionEvent is the JSON payload published per motion frame.
type MotionEvent struct {
	Sequence  uint64          `json:"sequence"`
	Timestamp float64         `json:"timestamp"`
	Count     int             `json:"count"`
	Regions   []detect.Region `json:"regions"`
}

// Stats contains emitter counters for the status API.
type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

type MQTTEmitter struct {
	broker   string
	clientID string
	topic    string
	qos      byte

	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

func NewMQTTEmitter(broker, clientID, topic string, qos byte) *MQTTEmitter {
	return &MQTTEmitter{
		broker:   broker,
		clientID: clientID,
		topic:    topic,
		qos:      qos,
	}
}

// Connect establishes the broker connection. The client auto-reconnects
// after transient broker failures; events published while disconnected
// count as errors and are dropped.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.broker))
	opts.SetClientID(e.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		log.Info().Str("broker", e.broker).Str("client_id", e.clientID).
			Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		log.Warn().Err(err).Str("broker", e.broker).
			Msg("MQTT connection lost, will auto-reconnect")
	}

	e.client = mqtt.NewClient(opts)

	log.Info().Str("broker", e.broker).Msg("Connecting to MQTT broker")
	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("emitter: connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: connect: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Emit publishes one motion event.
func (e *MQTTEmitter) Emit(event MotionEvent) error {
	if !e.isConnected() {
		e.fail()
		return fmt.Errorf("emitter: not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.fail()
		return fmt.Errorf("emitter: marshal: %w", err)
	}

	token := e.client.Publish(e.topic, e.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.fail()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.fail()
		return fmt.Errorf("emitter: publish: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	log.Debug().Str("topic", e.topic).Uint64("sequence", event.Sequence).
		Int("regions", event.Count).Msg("Motion event published")
	return nil
}

func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		log.Info().Msg("MQTT disconnected")
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) fail() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
