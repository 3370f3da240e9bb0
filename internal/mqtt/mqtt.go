package mqtt

import (
	"crypto/tls"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Options configures the broker connection
type Options struct {
	Broker             string // tcp://host:1883, ssl://host:8883 or host:port
	ClientID           string
	Username           string
	Password           string
	TLS                bool
	InsecureSkipVerify bool
	QoS                byte
	ConnectTimeout     time.Duration
}

// Handlers receive connection lifecycle and inbound messages.
// OnTransportError is called when a publish or subscribe fails.
type Handlers struct {
	OnMessage        func(topic string, payload []byte)
	OnConnect        func()
	OnConnectionLost func(err error)
	OnTransportError func(err error)
}

// Client is a fire-and-forget publish/subscribe transport over paho
type Client struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	route   mqtt.MessageHandler
	onError func(err error)
}

// BrokerURL normalises a broker address into a paho server URL
func BrokerURL(broker string, useTLS bool) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	if useTLS {
		if !strings.Contains(broker, ":") {
			broker += ":8883"
		}
		return "ssl://" + broker
	}
	if !strings.Contains(broker, ":") {
		broker += ":1883"
	}
	return "tcp://" + broker
}

// NewClientID generates a unique client id, brokers drop duplicate sessions
func NewClientID(prefix string) string {
	if prefix == "" {
		prefix = "beegreen"
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func clientOptions(o Options, h Handlers, route mqtt.MessageHandler) *mqtt.ClientOptions {
	clientID := o.ClientID
	if clientID == "" {
		clientID = NewClientID("")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(BrokerURL(o.Broker, o.TLS)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(30 * time.Second).
		SetOrderMatters(true).
		SetDefaultPublishHandler(route)
	if o.ConnectTimeout > 0 {
		opts.SetConnectTimeout(o.ConnectTimeout)
	}
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.TLS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: o.InsecureSkipVerify})
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: Connected to %s as %s", o.Broker, clientID)
		if h.OnConnect != nil {
			h.OnConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
		if h.OnConnectionLost != nil {
			h.OnConnectionLost(err)
		}
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Printf("MQTT: Reconnecting to %s", o.Broker)
	})
	return opts
}

// NewMQTTClient creates an MQTT client; call Connect to start the session
func NewMQTTClient(o Options, h Handlers) *Client {
	c := &Client{qos: o.QoS, timeout: o.ConnectTimeout, onError: h.OnTransportError}
	c.route = func(_ mqtt.Client, msg mqtt.Message) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Topic(), msg.Payload())
		}
	}
	c.client = mqtt.NewClient(clientOptions(o, h, c.route))
	return c
}

// Connect starts connecting. With connect retry enabled a broker that is
// down keeps being retried in the background, so only errors reported
// within the connect timeout are returned.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if c.timeout > 0 && token.WaitTimeout(c.timeout) && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// watch logs a failed token. Publish and subscribe failures are also
// reported to onError when report is set.
func (c *Client) watch(action, topic string, token mqtt.Token, report bool) {
	go func() {
		if !token.Wait() || token.Error() == nil {
			return
		}
		err := token.Error()
		log.Printf("MQTT: %s %s failed: %v", action, topic, err)
		if report && c.onError != nil {
			c.onError(fmt.Errorf("%s %s: %w", strings.ToLower(action), topic, err))
		}
	}()
}

// Publish sends payload without waiting for the broker acknowledgement
func (c *Client) Publish(topic string, payload []byte) {
	c.watch("Publish", topic, c.client.Publish(topic, c.qos, false, payload), true)
}

// Subscribe subscribes to a single non-wildcard topic
func (c *Client) Subscribe(topic string) {
	c.watch("Subscribe", topic, c.client.Subscribe(topic, c.qos, c.route), true)
}

// Unsubscribe drops a topic subscription
func (c *Client) Unsubscribe(topic string) {
	c.watch("Unsubscribe", topic, c.client.Unsubscribe(topic), false)
}

// Disconnect closes the connection after letting in-flight work finish
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	log.Println("MQTT: Disconnected")
}
