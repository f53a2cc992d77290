// Package mqtt publishes admissions to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"

	"api-rate-validator/internal/gate"
)

type Config struct {
	Broker      string
	TopicPrefix string
	ClientID    string
}

type Publisher struct {
	cfg    Config
	client paho.Client
	log    logr.Logger
}

func NewPublisher(cfg Config, log logr.Logger) *Publisher {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("rate-validator-%d", time.Now().UnixNano())
	}
	cfg.TopicPrefix = strings.Trim(cfg.TopicPrefix, "/")
	p := &Publisher{cfg: cfg, log: log.WithName("mqtt")}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			p.log.Info("connected", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Error(err, "connection lost")
		})
	p.client = paho.NewClient(opts)
	return p
}

// Topic is where admissions of clientID are published. MQTT wildcard and
// separator characters in the id are replaced.
func (p *Publisher) Topic(clientID string) string {
	id := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(clientID)
	if p.cfg.TopicPrefix == "" {
		return id + "/admitted"
	}
	return p.cfg.TopicPrefix + "/" + id + "/admitted"
}

// Start connects and keeps the connection until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	// with ConnectRetry the token only completes once connected, so don't wait on it
	p.client.Connect()

	<-ctx.Done()
	p.log.Info("context cancelled, disconnecting")
	p.client.Disconnect(250)
	return nil
}

// Admitted publishes a without waiting for the broker. Events raised while
// disconnected are dropped.
func (p *Publisher) Admitted(_ context.Context, a gate.Admission) {
	if !p.client.IsConnectionOpen() {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		p.log.Error(err, "marshal admission")
		return
	}
	token := p.client.Publish(p.Topic(a.ClientID), 0, false, data)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.log.Error(token.Error(), "publish", "client", a.ClientID)
		}
	}()
}

var _ gate.Observer = (*Publisher)(nil)
