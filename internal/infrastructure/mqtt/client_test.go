package mqtt

import (
	"errors"
	"strings"
	"testing"
)

// disconnectedClient returns a client that was never connected.
// Operations on it must fail fast with ErrNotConnected.
func disconnectedClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{
			name:    "empty topic",
			topic:   "",
			payload: []byte("{}"),
			qos:     1,
			wantErr: ErrInvalidTopic,
		},
		{
			name:    "invalid qos",
			topic:   "ccu/order/request",
			payload: []byte("{}"),
			qos:     3,
			wantErr: ErrInvalidQoS,
		},
		{
			name:    "oversized payload",
			topic:   "ccu/order/request",
			payload: make([]byte, maxPayloadSize+1),
			qos:     1,
			wantErr: ErrPublishFailed,
		},
		{
			name:    "not connected",
			topic:   "ccu/order/request",
			payload: []byte("{}"),
			qos:     1,
			wantErr: ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("module/v1/ff/+/state", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("module/v1/ff/+/state", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("module/v1/ff/+/state", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("failed subscribes must not be tracked, count = %d", c.SubscriptionCount())
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on never-connected client error = %v, want nil", err)
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		got  string
		want string
	}{
		{topics.ModuleOrder("SVR4H76449"), "module/v1/ff/SVR4H76449/order"},
		{topics.ModuleState("SVR3QA0022"), "module/v1/ff/SVR3QA0022/state"},
		{topics.ModuleConnection("SVR3QA0022"), "module/v1/ff/SVR3QA0022/connection"},
		{topics.ModuleFactsheet("SVR3QA0022"), "module/v1/ff/SVR3QA0022/factsheet"},
		{topics.TransportOrder("5iO4"), "fts/v1/ff/5iO4/order"},
		{topics.TransportState("5iO4"), "fts/v1/ff/5iO4/state"},
		{topics.AllModuleStates(), "module/v1/ff/+/state"},
		{topics.AllTransportStates(), "fts/v1/ff/+/state"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestSerialFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"module/v1/ff/SVR4H76449/state", "SVR4H76449"},
		{"module/v1/ff/SVR4H76449/order", "SVR4H76449"},
		{"fts/v1/ff/5iO4/state", "5iO4"},
		{"ccu/order/request", ""},
		{"module/v2/ff/SVR4H76449/state", ""},
		{"module/v1/ff/state", ""},
	}

	for _, tt := range tests {
		if got := SerialFromTopic(tt.topic); got != tt.want {
			t.Errorf("SerialFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestBuildStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("aps-core")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload missing status: %s", online)
	}
	offline := buildOfflinePayload("aps-core")
	if !strings.Contains(offline, `"graceful_shutdown"`) {
		t.Errorf("offline payload missing reason: %s", offline)
	}
}
