// Package notify publishes the single-byte badge status code to a remote
// MQTT topic. Delivery is best-effort: every publish opens a short-lived
// client, waits for the broker acknowledgment within a bounded timeout, and
// always releases the connection.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/protocol"
)

// ErrDisabled is returned when the notifier is configured off.
var ErrDisabled = errors.New("notifier disabled")

// Notifier publishes safety codes over MQTT.
type Notifier struct {
	cfg config.NotifierConfig
	log *slog.Logger

	// newClient is swapped in tests.
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

func New(cfg config.NotifierConfig, log *slog.Logger) *Notifier {
	return &Notifier{cfg: cfg, log: log, newClient: mqtt.NewClient}
}

// Enabled reports whether publishing is configured on.
func (n *Notifier) Enabled() bool {
	return n.cfg.Enabled
}

// Publish sends the safety category's one-byte code with at-least-once
// delivery. A fresh random client ID avoids stale broker sessions. Failure
// is reported to the caller and never retried; the classification result
// already shown stands.
func (n *Notifier) Publish(safety protocol.Safety) error {
	if !n.cfg.Enabled {
		return ErrDisabled
	}

	connectTimeout := time.Duration(n.cfg.ConnectTimeout) * time.Millisecond
	publishTimeout := time.Duration(n.cfg.PublishTimeout) * time.Millisecond

	opts := mqtt.NewClientOptions().
		AddBroker(n.cfg.Broker).
		SetClientID("kavach-" + uuid.NewString()).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(false)

	client := n.newClient(opts)
	defer client.Disconnect(250)

	if tok := client.Connect(); !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to broker %s: timeout after %s", n.cfg.Broker, connectTimeout)
	} else if err := tok.Error(); err != nil {
		return fmt.Errorf("connect to broker %s: %w", n.cfg.Broker, err)
	}

	payload := []byte{safety.Code()}
	tok := client.Publish(n.cfg.Topic, byte(n.cfg.QoS), false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: acknowledgment timeout after %s", n.cfg.Topic, publishTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.cfg.Topic, err)
	}

	n.log.Info("badge code published",
		slog.String("topic", n.cfg.Topic),
		slog.String("code", string(payload)))
	return nil
}
