package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of the MQTT client the publisher needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Source resolves accessories by UUID. *bridge.Bridge satisfies it.
type Source interface {
	Accessories() []*accessory.Accessory
	Accessory(uuid string) (*accessory.Accessory, error)
}

// Logger is the structured logger used by the publisher.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Publisher.
type Options struct {
	Client MQTTClient
	Source Source
	Topics mqtt.Topics
	QoS    byte
	Logger Logger
}

// Metrics counts publisher activity.
type Metrics struct {
	StatesPublished uint64
	Commands        uint64
	CommandErrors   uint64
}

// Publisher mirrors accessories onto MQTT with Home Assistant discovery.
type Publisher struct {
	client MQTTClient
	source Source
	topics mqtt.Topics
	qos    byte
	logger Logger

	ctx       context.Context
	ctxCancel context.CancelFunc
	startOnce sync.Once

	statesPublished atomic.Uint64
	commands        atomic.Uint64
	commandErrors   atomic.Uint64
}

// NewPublisher creates a publisher. Call Start to announce accessories and
// accept commands.
func NewPublisher(opts Options) (*Publisher, error) {
	if opts.Client == nil {
		return nil, ErrClientRequired
	}
	if opts.Source == nil {
		return nil, ErrSourceRequired
	}
	if opts.Topics.Prefix == "" {
		opts.Topics = mqtt.NewTopics(mqtt.DefaultTopicPrefix, mqtt.DefaultDiscoveryPrefix)
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		client:    opts.Client,
		source:    opts.Source,
		topics:    opts.Topics,
		qos:       opts.QoS,
		logger:    logger,
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to command topics and announces every known accessory.
// Commands run until Stop.
func (p *Publisher) Start() error {
	var err error
	p.startOnce.Do(func() {
		if err = p.client.Subscribe(p.topics.AllCommands(), p.qos, p.handleCommand); err != nil {
			err = fmt.Errorf("subscribing to commands: %w", err)
			return
		}
		for _, acc := range p.source.Accessories() {
			if aerr := p.Announce(acc); aerr != nil {
				p.logger.Warn("announcing accessory failed", "uuid", acc.UUID, "error", aerr)
			}
		}
	})
	return err
}

// Stop cancels commands still being applied.
func (p *Publisher) Stop() {
	p.ctxCancel()
}

// Announce publishes the discovery config and current values of an accessory.
func (p *Publisher) Announce(acc *accessory.Accessory) error {
	cfg, ok := DiscoveryConfig(p.topics, acc)
	if !ok {
		p.logger.Debug("no discovery component for accessory", "uuid", acc.UUID, "service", acc.Archetype.Service())
		return nil
	}
	component, _ := Component(acc)

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling discovery config: %w", err)
	}
	if err := p.client.Publish(p.topics.DiscoveryConfig(component, acc.UUID), payload, p.qos, true); err != nil {
		return fmt.Errorf("publishing discovery config: %w", err)
	}

	values := acc.Values()
	for _, m := range acc.Archetype.Mappings() {
		v, ok := values[m.Name]
		if !ok {
			continue
		}
		if err := p.publishState(acc, m.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// Forget removes an accessory from Home Assistant by clearing its retained
// discovery config.
func (p *Publisher) Forget(acc *accessory.Accessory) error {
	component, ok := Component(acc)
	if !ok {
		return nil
	}
	return p.client.Publish(p.topics.DiscoveryConfig(component, acc.UUID), nil, p.qos, true)
}

// HandleEvent publishes a property change. It is an accessory.Listener.
func (p *Publisher) HandleEvent(_ context.Context, ev accessory.Event) {
	if err := p.publishState(ev.Accessory, ev.Property, ev.Value); err != nil {
		p.logger.Warn("publishing state failed",
			"uuid", ev.Accessory.UUID,
			"property", ev.Property,
			"error", err)
	}
}

func (p *Publisher) publishState(acc *accessory.Accessory, property string, v any) error {
	m, ok := acc.Archetype.Mapping(property)
	if !ok {
		return fmt.Errorf("%w: %s", accessory.ErrUnknownProperty, property)
	}
	payload := EncodeValue(m, v)
	if err := p.client.Publish(p.topics.State(acc.UUID, property), []byte(payload), p.qos, true); err != nil {
		return fmt.Errorf("publishing %s: %w", property, err)
	}
	p.statesPublished.Add(1)
	return nil
}

// handleCommand applies a command message. Errors are returned to the MQTT
// client, which logs them.
func (p *Publisher) handleCommand(topic string, payload []byte) error {
	p.commands.Add(1)
	if err := p.applyCommand(topic, payload); err != nil {
		p.commandErrors.Add(1)
		return err
	}
	return nil
}

func (p *Publisher) applyCommand(topic string, payload []byte) error {
	uuid, property, ok := p.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	acc, err := p.source.Accessory(uuid)
	if err != nil {
		return err
	}
	c, ok := acc.Characteristic(property)
	if !ok {
		return fmt.Errorf("%w: %s", accessory.ErrUnknownProperty, property)
	}

	v, err := DecodePayload(c.Mapping(), payload)
	if err != nil {
		return err
	}

	p.logger.Debug("mqtt command",
		"uuid", uuid,
		"property", property,
		"value", v)

	if err := c.Set(p.ctx, v); err != nil {
		return fmt.Errorf("setting %s on %s: %w", property, acc.DisplayName(), err)
	}
	return nil
}

// Metrics returns a snapshot of the publisher counters.
func (p *Publisher) Metrics() Metrics {
	return Metrics{
		StatesPublished: p.statesPublished.Load(),
		Commands:        p.commands.Load(),
		CommandErrors:   p.commandErrors.Load(),
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
