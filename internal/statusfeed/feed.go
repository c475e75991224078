// Package statusfeed subscribes to encoder status topics and turns MQTT
// messages into stored observations.
package statusfeed

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"encwatch/core-go/internal/downtime"
	"encwatch/core-go/internal/ingest"
)

// Sink stores parsed status records. *ingest.Importer satisfies it.
type Sink interface {
	ImportRecords(ctx context.Context, records []downtime.Record, source string) (ingest.Result, error)
}

// Options configures the broker connection. Zero values get defaults.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topics defaults to encwatch/+/status. The single-level wildcard is the
	// device name.
	Topics []string

	ConnectTimeout   time.Duration
	SubscribeTimeout time.Duration
}

// Feed consumes status messages from an MQTT broker for as long as its
// context lives.
type Feed struct {
	log  zerolog.Logger
	sink Sink
	opts Options
	now  func() time.Time
}

func New(log zerolog.Logger, sink Sink, opts Options) (*Feed, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("core-go-%d", time.Now().Unix())
	}
	if len(opts.Topics) == 0 {
		opts.Topics = []string{"encwatch/+/status"}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.SubscribeTimeout <= 0 {
		opts.SubscribeTimeout = 5 * time.Second
	}
	return &Feed{
		log:  log.With().Str("component", "statusfeed").Logger(),
		sink: sink,
		opts: opts,
		now:  time.Now,
	}, nil
}

// Run connects, subscribes, and blocks until ctx is done. Reconnects are
// handled by the client; a broker that is down at startup fails the call.
func (f *Feed) Run(ctx context.Context) error {
	co := mqtt.NewClientOptions()
	co.AddBroker(f.opts.Broker)
	co.SetClientID(f.opts.ClientID)
	if f.opts.Username != "" {
		co.SetUsername(f.opts.Username)
		co.SetPassword(f.opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		f.log.Warn().Err(err).Msg("mqtt connection lost")
	})
	co.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		f.log.Info().Str("broker", f.opts.Broker).Msg("mqtt reconnecting")
	})

	client := mqtt.NewClient(co)

	token := client.Connect()
	if !token.WaitTimeout(f.opts.ConnectTimeout) {
		return fmt.Errorf("connect to mqtt broker %s: timed out", f.opts.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", f.opts.Broker, err)
	}
	defer client.Disconnect(250)

	f.log.Info().Str("broker", f.opts.Broker).Msg("mqtt connected")

	for _, topic := range f.opts.Topics {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			f.handleMessage(ctx, msg.Topic(), msg.Payload())
		})
		if !token.WaitTimeout(f.opts.SubscribeTimeout) {
			return fmt.Errorf("subscribe to %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		f.log.Info().Str("topic", topic).Msg("mqtt subscribed")
	}

	<-ctx.Done()
	return nil
}

func (f *Feed) handleMessage(ctx context.Context, topic string, payload []byte) {
	rec, err := ParseStatusMessage(topic, payload, f.now())
	if err != nil {
		f.log.Warn().Err(err).Str("topic", topic).Msg("status message rejected")
		return
	}

	res, err := f.sink.ImportRecords(ctx, []downtime.Record{rec}, "mqtt")
	if err != nil {
		f.log.Error().Err(err).Str("topic", topic).Str("device", rec.Device).Msg("status message not stored")
		return
	}
	if res.Inserted == 0 {
		// Normalize filtered the row, e.g. a non-encoding channel.
		f.log.Debug().Str("topic", topic).Str("type", rec.Label).Msg("status message filtered")
	}
}
