// Package telemetry publishes realm session events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/util"
)

// Topic leaves under <prefix>/<player>/. Subsystem events use the
// subsystem name as their leaf.
const (
	TopicConnection = "connection"
	TopicLatency    = "latency"
	TopicTimeouts   = "timeouts"
	TopicHeartbeat  = "heartbeat"
	TopicAdmin      = "admin"
)

// QoS used for every publish.
const QoS = 1

// Publisher is the part of an MQTT client the handler uses.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTHandler forwards bus events to the broker as JSON.
type MQTTHandler struct {
	mu       sync.Mutex
	attached bool

	cfg      config.MQTTConfig
	player   string
	eventBus *events.EventBus
	client   Publisher
	paho     mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a handler backed by a paho client built from cfg.
func NewMQTTHandler(cfg config.MQTTConfig, player string, eventBus *events.EventBus, version string) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("realmlink-%s-%s", sysInfo.Hostname, player))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if cfg.UseTLS {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	h := NewHandler(cfg, player, eventBus, client, Metadata(sysInfo, version))
	h.paho = client
	return h, nil
}

func buildTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	// mTLS: client certificate
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in MQTT CA file %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Metadata is the host description merged into every message.
func Metadata(sysInfo util.SystemInfo, version string) map[string]interface{} {
	return map[string]interface{}{
		"hostname":    sysInfo.Hostname,
		"os":          sysInfo.OS,
		"cpu_model":   sysInfo.CPUModel,
		"cpu_cores":   sysInfo.CPUCores,
		"memory_mb":   sysInfo.TotalMemory,
		"app_version": version,
	}
}

// NewHandler creates a handler publishing through client.
func NewHandler(cfg config.MQTTConfig, player string, eventBus *events.EventBus, client Publisher, metadata map[string]interface{}) *MQTTHandler {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "realmlink"
	}
	return &MQTTHandler{
		cfg:      cfg,
		player:   player,
		eventBus: eventBus,
		client:   client,
		metadata: metadata,
	}
}

// Topic returns the full topic for leaf.
func (h *MQTTHandler) Topic(leaf string) string {
	player := h.player
	if player == "" {
		player = "unknown"
	}
	return strings.Join([]string{h.cfg.TopicPrefix, player, leaf}, "/")
}

// Start connects to the broker, forwards events until ctx ends, then
// announces shutdown and disconnects.
func (h *MQTTHandler) Start(ctx context.Context) error {
	if h.paho == nil {
		return fmt.Errorf("MQTT handler has no broker connection")
	}

	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.paho.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.Attach()
	<-ctx.Done()
	h.Detach()

	h.PublishShutdown()
	h.paho.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")
	return nil
}

// Attach subscribes the handler to the bus. It is idempotent.
func (h *MQTTHandler) Attach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attached {
		return
	}
	h.attached = true

	h.eventBus.Subscribe(events.EventRecordDecoded, "mqtt.record", h.onRecord)
	h.eventBus.Subscribe(events.EventMirrorChanged, "mqtt.mirror", h.onMirror)
	h.eventBus.Subscribe(events.EventConnectionEstablished, "mqtt.connection", h.onConnection)
	h.eventBus.Subscribe(events.EventConnectionLost, "mqtt.connection", h.onConnection)
	h.eventBus.Subscribe(events.EventCorrelationTimedOut, "mqtt.timeout", h.onTimeout)
	h.eventBus.Subscribe(events.EventLatencyHigh, "mqtt.latency", h.onLatency)
}

// Detach removes the bus subscriptions.
func (h *MQTTHandler) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.attached {
		return
	}
	h.attached = false

	h.eventBus.Unsubscribe(events.EventRecordDecoded, "mqtt.record")
	h.eventBus.Unsubscribe(events.EventMirrorChanged, "mqtt.mirror")
	h.eventBus.Unsubscribe(events.EventConnectionEstablished, "mqtt.connection")
	h.eventBus.Unsubscribe(events.EventConnectionLost, "mqtt.connection")
	h.eventBus.Unsubscribe(events.EventCorrelationTimedOut, "mqtt.timeout")
	h.eventBus.Unsubscribe(events.EventLatencyHigh, "mqtt.latency")
}

// publish sends a JSON message to the leaf topic. Messages are dropped
// while the broker is unreachable.
func (h *MQTTHandler) publish(leaf, event string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}
	topic := h.Topic(leaf)

	data, err := json.Marshal(h.buildMessage(event, payload))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, QoS, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(event string, payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["event"] = event
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// Event handlers

func (h *MQTTHandler) onRecord(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.RecordPayload)
	if !ok {
		return fmt.Errorf("unexpected record payload %T", event.Payload)
	}
	h.publish(p.Subsystem, "record", p)
	return nil
}

func (h *MQTTHandler) onMirror(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.MirrorPayload)
	if !ok {
		return fmt.Errorf("unexpected mirror payload %T", event.Payload)
	}
	h.publish(p.Subsystem, "mirror", p)
	return nil
}

func (h *MQTTHandler) onConnection(ctx context.Context, event events.Event) error {
	h.publish(TopicConnection, string(event.Type), event.Payload)
	return nil
}

func (h *MQTTHandler) onTimeout(ctx context.Context, event events.Event) error {
	h.publish(TopicTimeouts, string(event.Type), event.Payload)
	return nil
}

func (h *MQTTHandler) onLatency(ctx context.Context, event events.Event) error {
	h.publish(TopicLatency, string(event.Type), event.Payload)
	return nil
}

// PublishHeartbeat publishes a snapshot of every facade mirror.
func (h *MQTTHandler) PublishHeartbeat(snapshot map[string]interface{}) {
	h.publish(TopicHeartbeat, "heartbeat", snapshot)
}

// PublishShutdown announces that the client is going away.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, "shutdown", nil)
}
