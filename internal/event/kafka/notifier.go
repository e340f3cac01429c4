package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ronaldocpontes/contribute/internal/repository"
)

// Типы событий жизненного цикла контрибуции
const (
	EventContributionSucceeded = "contribution.payment.succeeded"
	EventContributionCancelled = "contribution.cancelled"
	EventProjectRemoved        = "contribution.project.removed"
	EventOperatorAlert         = "contribution.operator.alert"
)

// KafkaNotifier реализует service.Notifier используя Kafka.
// Отправка best-effort: ошибку публикации получает вызывающий код,
// но переходы состояния от неё не зависят.
type KafkaNotifier struct {
	logger *zap.Logger
	writer *kafka.Writer
	topic  string
}

// NewKafkaNotifier создаёт новый Kafka notifier для событий контрибуций
func NewKafkaNotifier(logger *zap.Logger, brokers []string, topic string) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaNotifier{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

// Close закрывает Kafka writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// ContributionSucceeded публикует событие успешной оплаты контрибуции
func (n *KafkaNotifier) ContributionSucceeded(ctx context.Context, c repository.Contribution) error {
	return n.publish(ctx, EventContributionSucceeded, c, "")
}

// ContributionCancelled публикует событие отмены контрибуции
func (n *KafkaNotifier) ContributionCancelled(ctx context.Context, c repository.Contribution) error {
	return n.publish(ctx, EventContributionCancelled, c, "")
}

// ProjectRemoved публикует событие удаления проекта контрибуции
func (n *KafkaNotifier) ProjectRemoved(ctx context.Context, c repository.Contribution) error {
	return n.publish(ctx, EventProjectRemoved, c, "")
}

// OperatorAlert публикует событие для операторского канала
func (n *KafkaNotifier) OperatorAlert(ctx context.Context, c repository.Contribution, reason string) error {
	return n.publish(ctx, EventOperatorAlert, c, reason)
}

// publish собирает JSON payload события и отправляет его в Kafka
func (n *KafkaNotifier) publish(ctx context.Context, eventType string, c repository.Contribution, reason string) error {
	payload := map[string]interface{}{
		"event_id":        uuid.New().String(), //уникальный ID события
		"event_type":      eventType,
		"event_version":   1,
		"occurred_at":     time.Now().UTC().Format(time.RFC3339),
		"contribution_id": c.ID,
		"project_id":      c.ProjectID,
		"user_id":         c.UserID,
		"amount":          c.Amount,
		"status":          string(c.Status),
	}
	if c.TransactionID != "" {
		payload["transaction_id"] = c.TransactionID
	}
	if reason != "" {
		payload["reason"] = reason
	}

	valueBytes, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to marshal contribution event",
			zap.Error(err),
			zap.String("event_type", eventType),
			zap.String("contribution_id", c.ID),
		)
		return err
	}

	message := kafka.Message{
		Key:   []byte(c.ID), //ключ сообщения - ID контрибуции
		Value: valueBytes,
	}

	if err := n.writer.WriteMessages(ctx, message); err != nil {
		n.logger.Error("failed to publish contribution event",
			zap.Error(err),
			zap.String("topic", n.topic),
			zap.String("event_type", eventType),
			zap.String("contribution_id", c.ID),
		)
		return err
	}

	n.logger.Info("contribution event published",
		zap.String("topic", n.topic),
		zap.String("event_type", eventType),
		zap.String("contribution_id", c.ID),
	)

	return nil
}
