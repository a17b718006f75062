package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"mediaTranscode/worker/models"
)

type MessageHandler func(ctx context.Context, msg *ProfileTaskMessage) error

// ProfileTaskMessage mirrors the producer-side work message. Delivery is
// at-least-once; handlers must tolerate redelivery.
type ProfileTaskMessage struct {
	TaskID        string                         `json:"task_id"`
	TraceID       string                         `json:"trace_id"`
	ProfileID     string                         `json:"profile_id"`
	SourceLocator string                         `json:"source_locator"`
	InputType     string                         `json:"input_type"`
	FaceDetection bool                           `json:"face_detection,omitempty"`
	Config        models.ProfileConfig           `json:"config"`
	DestConfig    models.OutputDestinationConfig `json:"dest_config"`
}

type Consumer struct {
	consumer sarama.ConsumerGroup
}

func NewConsumer(brokers []string, groupID string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	c, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c}, nil
}

type consumerHandler struct {
	fn  MessageHandler
	ctx context.Context
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var taskMsg ProfileTaskMessage
		if err := json.Unmarshal(msg.Value, &taskMsg); err != nil {
			// Unparseable messages can never succeed; ack and move on.
			session.MarkMessage(msg, "")
			continue
		}
		if err := h.fn(h.ctx, &taskMsg); err != nil {
			// Leave unacked so the message is redelivered.
			continue
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

func (c *Consumer) Consume(ctx context.Context, topic string, handler MessageHandler) error {
	h := &consumerHandler{fn: handler, ctx: ctx}
	return c.consumer.Consume(ctx, []string{topic}, h)
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
