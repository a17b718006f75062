package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"mediaTranscode/api/models"
)

type Producer interface {
	SendProfileTask(ctx context.Context, topic string, message *ProfileTaskMessage) error
	Close() error
}

// ProfileTaskMessage is one unit of work. It carries everything a worker
// needs, so redelivered messages never consult mutable state.
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

type producer struct {
	producer sarama.SyncProducer
}

func NewProducer(brokers []string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p}, nil
}

func (p *producer) SendProfileTask(ctx context.Context, topic string, message *ProfileTaskMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(message.TaskID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
