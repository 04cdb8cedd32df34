package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/parking.report/internal/parking/engine"
)

// DefaultTopicPrefix is prepended to the lot id to form the topic.
const DefaultTopicPrefix = "parking/lots"

// PublishFunc publishes payload on topic as a retained message and waits
// for the broker to accept it or ctx to end.
type PublishFunc func(ctx context.Context, topic string, payload []byte) error

// MQTT publishes each report as retained JSON on <prefix>/<lot id>, so a
// subscriber connecting later still gets the current state of every lot.
type MQTT struct {
	prefix  string
	publish PublishFunc
}

// NewMQTT returns an MQTT sink. An empty prefix uses DefaultTopicPrefix.
func NewMQTT(prefix string, publish PublishFunc) *MQTT {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTT{prefix: strings.TrimSuffix(prefix, "/"), publish: publish}
}

// Topic returns the topic used for lotID.
func (m *MQTT) Topic(lotID string) string {
	return m.prefix + "/" + lotID
}

// Report implements engine.ReportingSink.
func (m *MQTT) Report(ctx context.Context, r engine.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := m.publish(ctx, m.Topic(r.LotID), payload); err != nil {
		return fmt.Errorf("publish %s: %w", m.Topic(r.LotID), err)
	}
	return nil
}

// MQTTOptions configures DialMQTT.
type MQTTOptions struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// DialMQTT connects to the broker and returns the client with a
// PublishFunc bound to it. The caller disconnects the client.
func DialMQTT(opts MQTTOptions) (mqtt.Client, PublishFunc, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(opts.Timeout)

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, nil, fmt.Errorf("connect to %s: timed out after %s", opts.Broker, opts.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}
	return client, PahoPublisher(client, opts.QoS), nil
}

// PahoPublisher adapts a connected paho client to PublishFunc.
func PahoPublisher(client mqtt.Client, qos byte) PublishFunc {
	return func(ctx context.Context, topic string, payload []byte) error {
		token := client.Publish(topic, qos, true, payload)
		select {
		case <-token.Done():
			return token.Error()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
