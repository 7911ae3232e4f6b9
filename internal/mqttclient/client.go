package mqttclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// eventBuffer is how many setup events may wait for the broker before new
// ones are dropped.
const eventBuffer = 64

// Client publishes setup events to an MQTT broker.
type Client struct {
	conn        mqtt.Client
	topicPrefix string
	connected   atomic.Bool
	log         zerolog.Logger

	// Events are queued by PublishEvent and sent by a single goroutine so a
	// slow or unreachable broker never blocks the caller.
	events    chan Event
	send      func(topic string, payload []byte) error
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func newClient(topicPrefix string, log zerolog.Logger) *Client {
	return &Client{
		topicPrefix: strings.TrimRight(topicPrefix, "/"),
		log:         log,
		events:      make(chan Event, eventBuffer),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func Connect(opts Options) (*Client, error) {
	c := newClient(opts.TopicPrefix, opts.Log)

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	c.send = c.Publish
	go c.drain()
	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("prefix", c.topicPrefix).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// Topic returns the full topic for a migration name.
func (c *Client) Topic(name string) string {
	return c.topicPrefix + "/" + name
}

// Publish sends payload at QoS 1 and waits for the broker to acknowledge it.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.conn.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	return token.Error()
}

// Event is the JSON body published for each migration outcome.
type Event struct {
	Name    string    `json:"name"`
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// PublishEvent queues ev for publishing under the migration's topic. It never
// blocks: when the queue is full the event is dropped and logged.
func (c *Client) PublishEvent(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Str("name", ev.Name).Msg("setup event queue full, dropping event")
	}
}

func (c *Client) drain() {
	defer close(c.done)
	for {
		select {
		case ev := <-c.events:
			c.publishEvent(ev)
		case <-c.quit:
			return
		}
	}
}

// publishEvent sends one event. Failures are logged, not returned, so a
// flaky broker never affects setup.
func (c *Client) publishEvent(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode setup event")
		return
	}
	topic := c.Topic(ev.Name)
	if err := c.send(topic, payload); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("failed to publish setup event")
		return
	}
	c.log.Debug().Str("topic", topic).Bool("success", ev.Success).Msg("setup event published")
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Close stops the publishing goroutine, discarding queued events, then
// disconnects.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.done
		c.log.Info().Msg("disconnecting mqtt client")
		if c.conn != nil {
			c.conn.Disconnect(1000)
		}
	})
}
