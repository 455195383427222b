package broker

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

// PahoConfig configures the real MQTT transport.
type PahoConfig struct {
	// BrokerURL is the full broker address, e.g. "tcp://localhost:1883".
	BrokerURL string

	// ClientID is the base client identifier; a random suffix is added
	// so multiple simulator instances can share a broker.
	ClientID string

	Username string
	Password string

	// KeepAlive and ConnectTimeout tune the session. Defaults: 30s / 10s.
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// PahoTransport adapts the Eclipse Paho client to Transport.
type PahoTransport struct {
	client  mqtt.Client
	log     *zap.Logger
	timeout time.Duration
}

// NewPahoTransport builds the MQTT transport. The connection is opened by
// Connect, not here.
func NewPahoTransport(cfg PahoConfig, log *zap.Logger) *PahoTransport {
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("broker connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info("connected to broker",
			zap.String("broker", cfg.BrokerURL),
			zap.String("client_id", clientID))
	})

	return &PahoTransport{
		client:  mqtt.NewClient(opts),
		log:     log,
		timeout: cfg.ConnectTimeout,
	}
}

// Connect opens the session.
func (p *PahoTransport) Connect(ctx context.Context) error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("connect timed out after %s", p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Publish sends without waiting for the broker ack; telemetry loss is
// tolerated and the next tick publishes fresh values anyway.
func (p *PahoTransport) Publish(msg uns.Message) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("not connected")
	}
	p.client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
	return nil
}

// Subscribe registers a handler for an MQTT topic filter.
func (p *PahoTransport) Subscribe(filter string, qos byte, handler MessageHandler) error {
	token := p.client.Subscribe(filter, qos, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload(), m.Retained())
	})
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("subscribe %s timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

// Unsubscribe removes a subscription.
func (p *PahoTransport) Unsubscribe(filter string) error {
	token := p.client.Unsubscribe(filter)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("unsubscribe %s timed out", filter)
	}
	return token.Error()
}

// Close disconnects, allowing in-flight messages a short grace period.
func (p *PahoTransport) Close() {
	p.client.Disconnect(250)
}
