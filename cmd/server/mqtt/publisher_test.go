package mqtt

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"

	"api-rate-validator/internal/gate"
)

func TestTopic(t *testing.T) {
	testCases := []struct {
		prefix, client, want string
	}{
		{"rate-validator", "client-001", "rate-validator/client-001/admitted"},
		{"/edge/rv/", "client-001", "edge/rv/client-001/admitted"},
		{"", "client-001", "client-001/admitted"},
		{"rv", "a/b+c#", "rv/a_b_c_/admitted"},
	}
	for _, tc := range testCases {
		p := NewPublisher(Config{Broker: "tcp://localhost:1883", TopicPrefix: tc.prefix}, logr.Discard())
		assert.Equal(t, tc.want, p.Topic(tc.client))
	}
}

func TestNewPublisherGeneratesClientID(t *testing.T) {
	p := NewPublisher(Config{Broker: "tcp://localhost:1883"}, logr.Discard())
	assert.NotEmpty(t, p.cfg.ClientID)
}

func TestAdmittedBeforeStartIsDropped(t *testing.T) {
	p := NewPublisher(Config{Broker: "tcp://localhost:1883"}, logr.Discard())
	assert.NotPanics(t, func() {
		p.Admitted(context.Background(), gate.Admission{ClientID: "client-001"})
	})
}
