package mqtt

import (
	"errors"
	"testing"
)

// disconnectedClient returns a client that was never connected, for
// exercising validation paths without a broker.
func disconnectedClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("user123")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"root", topics.Root(), "sberdevices/v1/user123"},
		{"downlink wildcard", topics.Downlink(), "sberdevices/v1/user123/down/#"},
		{"commands", topics.DownCommands(), "sberdevices/v1/user123/down/commands"},
		{"status request", topics.DownStatusRequest(), "sberdevices/v1/user123/down/status_request"},
		{"config request", topics.DownConfigRequest(), "sberdevices/v1/user123/down/config_request"},
		{"errors", topics.DownErrors(), "sberdevices/v1/user123/down/errors"},
		{"up status", topics.UpStatus(), "sberdevices/v1/user123/up/status"},
		{"up config", topics.UpConfig(), "sberdevices/v1/user123/up/config"},
		{"global config", TopicGlobalConfig, "sberdevices/v1/__config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Publish("", []byte("x"), 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}

	if err := c.Publish("t", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}

	big := make([]byte, maxPayloadSize+1)
	if err := c.Publish("t", big, 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversize payload error = %v, want ErrPublishFailed", err)
	}

	if err := c.Publish("t", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}

	if err := c.Subscribe("t", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}

	if err := c.Subscribe("t", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}

	if err := c.Subscribe("t", 0, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribe_Validation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}

	if err := c.Unsubscribe("t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestSubscriptionTracking_Empty(t *testing.T) {
	c := disconnectedClient()

	if got := c.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", got)
	}
	if c.HasSubscription("t") {
		t.Error("HasSubscription() = true for empty client")
	}
}
