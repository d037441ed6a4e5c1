package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
)

// ErrPermanent сообщение не удастся обработать и при повторе: оно снимается
// с очереди без возврата.
var ErrPermanent = errors.New("permanent message failure")

// ConsumerMessage запускает потребителя очереди. Ошибка handler возвращает
// сообщение в очередь, кроме ErrPermanent. Обработка идёт не более чем в 10 горутинах.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, handler func([]byte) error, log *slog.Logger) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sem := make(chan struct{}, 10)
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				go func(delivery amqp.Delivery) {
					defer func() { <-sem }()
					handleDelivery(delivery, handler, log)
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func handleDelivery(delivery amqp.Delivery, handler func([]byte) error, log *slog.Logger) {
	err := handler(delivery.Body)
	switch {
	case err == nil:
		if ackErr := delivery.Ack(false); ackErr != nil {
			log.Error("failed to ack message", sl.Err(ackErr))
		}
	case errors.Is(err, ErrPermanent):
		log.Error("message dropped", slog.String("routing_key", delivery.RoutingKey), sl.Err(err))
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	default:
		log.Warn("message handling failed, requeue", sl.Err(err))
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	}
}
