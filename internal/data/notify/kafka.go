package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/bytedance/sonic"

	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/util"
)

const kafkaRetryDelay = 5 * time.Second

// cdcEnvelope covers Debezium change events with and without the schema
// wrapper.
type cdcEnvelope struct {
	Before  map[string]interface{} `json:"before"`
	After   map[string]interface{} `json:"after"`
	Op      string                 `json:"op"`
	TsMs    int64                  `json:"ts_ms"`
	Source  cdcSource              `json:"source"`
	Payload *cdcEnvelope           `json:"payload"`
}

type cdcSource struct {
	Table string `json:"table"`
}

// ScopeFromMessage resolves the scope a change-feed message refers to: the
// scope field of the CDC row image (after, then before), then the message
// key, then AllScopes.
func ScopeFromMessage(key, value []byte, scopeField string) string {
	var event cdcEnvelope
	if err := sonic.Unmarshal(value, &event); err == nil {
		if event.Payload != nil {
			event = *event.Payload
		}
		for _, image := range []map[string]interface{}{event.After, event.Before} {
			if image == nil {
				continue
			}
			if scope := scopeFromRecord(image, scopeField); scope != "" {
				return scope
			}
		}
	}

	if k := strings.TrimSpace(string(key)); k != "" {
		if strings.HasPrefix(k, "{") {
			return scopeFromPayload(key, scopeField)
		}
		return k
	}
	return AllScopes
}

// KafkaNotifier consumes a CDC topic through a consumer group and emits one
// notice per change event.
type KafkaNotifier struct {
	group  sarama.ConsumerGroup
	topic  string
	events chan Notice
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewKafkaNotifier joins the consumer group and starts consuming until ctx
// ends or Close is called.
func NewKafkaNotifier(ctx context.Context, cfg config.KafkaNotifier) (*KafkaNotifier, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 10 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	k := &KafkaNotifier{
		group:  group,
		topic:  cfg.Topic,
		events: make(chan Notice, 100),
		cancel: cancel,
	}

	handler := &consumerGroupHandler{scopeField: cfg.ScopeField, events: k.events, origin: k.Name()}
	k.wg.Add(1)
	go k.consume(runCtx, handler)

	util.LogInfof("Kafka notifier consuming %s as group %s", cfg.Topic, cfg.GroupID)
	return k, nil
}

func (k *KafkaNotifier) consume(ctx context.Context, handler sarama.ConsumerGroupHandler) {
	defer k.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := k.group.Consume(ctx, []string{k.topic}, handler); err != nil {
			util.LogErrorf("Error consuming from topic %s: %v", k.topic, err)
			select {
			case <-time.After(kafkaRetryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Events() <-chan Notice { return k.events }

func (k *KafkaNotifier) Close() error {
	var err error
	k.once.Do(func() {
		k.cancel()
		err = k.group.Close()
		k.wg.Wait()
	})
	return err
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	scopeField string
	origin     string
	events     chan<- Notice
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	util.LogDebugf("Kafka consumer group session setup, member %s", session.MemberID())
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	util.LogDebug("Kafka consumer group session cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			scope := ScopeFromMessage(message.Key, message.Value, h.scopeField)
			select {
			case h.events <- Notice{Scope: scope, Origin: h.origin}:
			case <-session.Context().Done():
				return nil
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
