package mqttclient

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic(t *testing.T) {
	c := &Client{topicPrefix: "farmstand/setup"}
	assert.Equal(t, "farmstand/setup/profiles", c.Topic("profiles"))
}

func TestEventJSON(t *testing.T) {
	ev := Event{
		Name:    "deliveries",
		Success: false,
		Message: "relation \"orders\" does not exist",
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "deliveries", got["name"])
	assert.Equal(t, false, got["success"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["time"])
}

func TestPublishEventDoesNotBlock(t *testing.T) {
	c := newClient("farmstand/setup", zerolog.Nop())
	release := make(chan struct{})
	var mu sync.Mutex
	var topics []string
	c.send = func(topic string, _ []byte) error {
		<-release
		mu.Lock()
		topics = append(topics, topic)
		mu.Unlock()
		return nil
	}
	go c.drain()

	// The broker is stuck: every send waits on release. Queueing more events
	// than the buffer holds must still return at once.
	start := time.Now()
	for i := 0; i < eventBuffer+10; i++ {
		c.PublishEvent(Event{Name: "profiles", Success: true})
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(topics) > 0
	}, 2*time.Second, 10*time.Millisecond)

	c.Close()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "farmstand/setup/profiles", topics[0])
	assert.LessOrEqual(t, len(topics), eventBuffer+1)
}

func TestPublishEventSendFailure(t *testing.T) {
	c := newClient("farmstand/setup", zerolog.Nop())
	sent := make(chan string, 2)
	c.send = func(topic string, _ []byte) error {
		sent <- topic
		return errors.New("mqtt publish timed out")
	}
	go c.drain()
	defer c.Close()

	c.PublishEvent(Event{Name: "deliveries"})
	c.PublishEvent(Event{Name: "profiles"})
	assert.Equal(t, "farmstand/setup/deliveries", <-sent)
	assert.Equal(t, "farmstand/setup/profiles", <-sent)
}
