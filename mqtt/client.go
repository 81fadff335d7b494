package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ble-bridge/config"
	"ble-bridge/message"
	"ble-bridge/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishQoS = 1

	bridgeOnline  = "online"
	bridgeOffline = "offline"
)

var (
	ErrNotConnected   = errors.New("MQTT client is not connected")
	ErrPublishTimeout = errors.New("MQTT publish timed out")
)

// Client wraps the PAHO MQTT client and publishes device messages.
type Client struct {
	client       mqtt.Client
	msgGenerator message.MessageGenerator
	statusTopic  string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewClient creates and connects a new MQTT client. The broker keeps a
// retained bridge status that flips to offline through the last will.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	statusTopic := cfg.MQTTBaseTopic + "/bridge/status"
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetUsername(cfg.MQTTUsername).
		SetPassword(cfg.MQTTPassword).
		SetKeepAlive(60*time.Second).
		SetPingTimeout(1*time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10*time.Second).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetCleanSession(true).
		SetWill(statusTopic, bridgeOffline, publishQoS, true)

	mqttClient := newClient(nil, message.NewMessageGenerator(cfg.MQTTBaseTopic), statusTopic, cfg.Timeout, logger)

	opts.SetOnConnectHandler(mqttClient.onConnect)
	opts.SetConnectionLostHandler(mqttClient.onConnectionLost)
	client := mqtt.NewClient(opts)
	mqttClient.client = client

	if token := client.Connect(); !token.WaitTimeout(cfg.Timeout) {
		// SetConnectRetry keeps trying in the background; messages published
		// meanwhile fail with ErrNotConnected and are logged by the caller.
		mqttClient.logger.Warn("MQTT broker not reachable yet, retrying in background", "broker", cfg.MQTTBroker)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return mqttClient, nil
}

func newClient(client mqtt.Client, gen message.MessageGenerator, statusTopic string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		client:       client,
		msgGenerator: gen,
		statusTopic:  statusTopic,
		timeout:      timeout,
		logger:       logger.With("component", "mqtt_client"),
	}
}

// Disconnect announces the bridge offline and disconnects.
func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		if err := c.publish(c.statusTopic, true, []byte(bridgeOffline)); err != nil {
			c.logger.Warn("Failed to publish bridge status", slog.Any("error", err))
		}
		c.client.Disconnect(250)
		c.logger.Info("MQTT Client disconnected")
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("Successfully connected to MQTT broker")
	// 핸들러 안에서 토큰을 기다리면 paho 라우터가 막히므로 비동기로 발행합니다.
	go func() {
		if err := c.publish(c.statusTopic, true, []byte(bridgeOnline)); err != nil {
			c.logger.Warn("Failed to publish bridge status", slog.Any("error", err))
		}
	}()
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Error("Connection lost. Reconnecting...", slog.Any("error", err))
}

// Publish sends msg to its state or availability topic and waits for the
// broker to accept it.
func (c *Client) Publish(msg models.DeviceMessage) error {
	topic, retained, err := c.msgGenerator.Topic(msg)
	if err != nil {
		return err
	}
	payload, err := c.msgGenerator.Generate(msg)
	if err != nil {
		return fmt.Errorf("failed to generate payload: %w", err)
	}
	if err := c.publish(topic, retained, payload); err != nil {
		return fmt.Errorf("topic %s: %w", topic, err)
	}
	c.logger.Debug("Message published", "topic", topic, "type", msg.Type())
	return nil
}

func (c *Client) publish(topic string, retained bool, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, publishQoS, retained, payload)
	if !token.WaitTimeout(c.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}
