package meter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/storage"
	"github.com/raterudder/balancepoint/pkg/types"
)

// Listener subscribes to meter readings published over MQTT and stores them
// as usage history. The site ID is the second segment of the topic, e.g.
// balancepoint/{siteID}/usage.
type Listener struct {
	storage storage.Database

	broker   string
	topic    string
	clientID string
	username string
	password string
}

// Reading is the payload of a meter message.
type Reading struct {
	TS time.Time `json:"ts"`
	Wh float64   `json:"wh"`
}

// Configured registers the meter flags and returns the Listener.
func Configured(s storage.Database) *Listener {
	l := &Listener{storage: s}

	broker := lflag.String("meter-mqtt-broker", "", "MQTT broker URL for meter readings (e.g. tcp://localhost:1883); empty disables the listener")
	topic := lflag.String("meter-mqtt-topic", "balancepoint/+/usage", "MQTT topic filter for meter readings")
	clientID := lflag.String("meter-mqtt-client-id", "balancepoint", "MQTT client ID")
	username := lflag.String("meter-mqtt-username", "", "MQTT username")
	password := lflag.String("meter-mqtt-password", "", "MQTT password")

	lflag.Do(func() {
		l.broker = *broker
		l.topic = *topic
		l.clientID = *clientID
		l.username = *username
		l.password = *password
		if err := l.Validate(); err != nil {
			panic(fmt.Sprintf("meter validation failed: %v", err))
		}
	})

	return l
}

// Validate checks the listener configuration.
func (l *Listener) Validate() error {
	if l.broker == "" {
		return nil
	}
	if !strings.Contains(l.broker, "://") {
		return fmt.Errorf("meter-mqtt-broker must include a scheme: %s", l.broker)
	}
	if len(strings.Split(l.topic, "/")) < 2 {
		return fmt.Errorf("meter-mqtt-topic must have a site segment: %s", l.topic)
	}
	return nil
}

// Enabled reports whether a broker is configured.
func (l *Listener) Enabled() bool {
	return l.broker != ""
}

// Run connects to the broker and stores readings until the context is
// canceled. It returns immediately when the listener is disabled.
func (l *Listener) Run(ctx context.Context) error {
	if !l.Enabled() {
		log.Ctx(ctx).InfoContext(ctx, "meter listener disabled")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(l.broker)
	opts.SetClientID(l.clientID)
	opts.SetUsername(l.username)
	opts.SetPassword(l.password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Ctx(ctx).WarnContext(ctx, "meter mqtt connection lost", slog.Any("error", err))
	})

	// subscriptions are lost on reconnect so they are made on every connect
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Ctx(ctx).InfoContext(ctx, "connected to meter mqtt broker", slog.String("broker", l.broker))
		token := client.Subscribe(l.topic, 1, func(client mqtt.Client, msg mqtt.Message) {
			if err := l.handleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
				log.Ctx(ctx).WarnContext(ctx, "failed to handle meter reading", slog.String("topic", msg.Topic()), slog.Any("error", err))
			}
		})
		if token.Wait() && token.Error() != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to subscribe to meter topic", slog.String("topic", l.topic), slog.Any("error", token.Error()))
		} else {
			log.Ctx(ctx).InfoContext(ctx, "subscribed to meter topic", slog.String("topic", l.topic))
		}
	})

	client := mqtt.NewClient(opts)
	log.Ctx(ctx).InfoContext(ctx, "connecting to meter mqtt broker", slog.String("broker", l.broker))
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()

	client.Disconnect(250)
	log.Ctx(ctx).InfoContext(ctx, "disconnected from meter mqtt broker")
	return nil
}

// handleMessage decodes one reading and upserts it for the topic's site.
func (l *Listener) handleMessage(ctx context.Context, topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[1] == "" {
		return fmt.Errorf("topic has no site segment: %s", topic)
	}
	siteID := parts[1]
	ctx = log.WithAttrs(ctx, slog.String("siteID", siteID))

	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("failed to decode reading: %w", err)
	}
	if r.TS.IsZero() {
		return fmt.Errorf("reading missing ts")
	}
	if math.IsNaN(r.Wh) || math.IsInf(r.Wh, 0) || r.Wh < 0 {
		return fmt.Errorf("invalid reading wh: %g", r.Wh)
	}

	if err := l.storage.UpsertUsage(ctx, siteID, types.Series{{TS: r.TS, Value: r.Wh}}); err != nil {
		return fmt.Errorf("failed to store reading for site %s: %w", siteID, err)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"stored meter reading",
		slog.Time("ts", r.TS),
		slog.Float64("wh", r.Wh),
	)
	return nil
}
