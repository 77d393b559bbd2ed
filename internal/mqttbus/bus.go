// Package mqttbus wraps github.com/eclipse/paho.golang's autopaho
// connection manager, the one MQTT client library anywhere in the
// retrieval pack (grounded on the nugget-thane-ai-agent reference
// file's github.com/eclipse/paho.golang v0.23.0 dependency).
//
// autopaho's OnConnectionUp/OnConnectError hooks give us spec.md
// §4.5's "automatic reconnect to the broker is enabled" for free,
// rather than hand-rolling a reconnect loop the way a stdlib-only
// implementation would have to.
package mqttbus

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nic0-o1/DPS-DESM/internal/rpcerr"
)

// MessageHandler is invoked for every message on a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Bus is a thin connection-managed MQTT client shared by the request
// intake subscriber and the pollution batch publisher.
type Bus struct {
	cm     *autopaho.ConnectionManager
	logger *log.Logger
}

// Connect dials brokerURL (e.g. "tcp://host:1883") and blocks until a
// connection is established, 15 seconds pass, or ctx is done; if none
// is up by then it logs and returns the Bus anyway. Connection attempts
// and later disconnects are retried automatically by autopaho.
func Connect(ctx context.Context, brokerURL, clientID string, handler MessageHandler, logger *log.Logger) (*Bus, error) {
	if logger == nil {
		logger = log.Default()
	}

	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, &rpcerr.BrokerUnavailable{Err: fmt.Errorf("invalid broker url %q: %w", brokerURL, err)}
	}

	bus := &Bus{logger: logger}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     20,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Printf("mqttbus: connection to %s established", brokerURL)
		},
		OnConnectError: func(err error) {
			logger.Printf("mqttbus: connect error: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					if handler != nil {
						handler(pr.Packet.Topic, pr.Packet.Payload)
					}
					return true, nil
				},
			},
			OnClientError: func(err error) {
				logger.Printf("mqttbus: client error: %v", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				logger.Printf("mqttbus: server disconnected us: %v", d)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return nil, &rpcerr.BrokerUnavailable{Err: err}
	}
	bus.cm = cm

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connectCtx); err != nil {
		logger.Printf("mqttbus: initial connection not yet established, relying on background reconnect: %v", err)
	}

	return bus, nil
}

// Subscribe registers interest in topic at the given QoS.
func (b *Bus) Subscribe(ctx context.Context, topic string, qos byte) error {
	_, err := b.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: qos},
		},
	})
	if err != nil {
		return &rpcerr.BrokerUnavailable{Err: err}
	}
	return nil
}

// Publish sends payload to topic at the given QoS (spec.md §4.6 uses
// QoS 2 for pollution batches — "exactly-once" delivery).
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	_, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: payload,
	})
	if err != nil {
		return &rpcerr.BrokerUnavailable{Err: err}
	}
	return nil
}

// Disconnect closes the connection, following a finally discipline:
// callers should defer this right after a successful Connect.
func (b *Bus) Disconnect(ctx context.Context) error {
	if b.cm == nil {
		return nil
	}
	return b.cm.Disconnect(ctx)
}
