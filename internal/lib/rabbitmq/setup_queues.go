package rabbitmq

import "github.com/magabrotheeeer/cohost-credits/internal/models"

// CreditQueue очередь писем о кредитах.
const CreditQueue = "notifications.credit"

type QueueConfig struct {
	QueueName   string
	RoutingKeys []string
}

func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{
			QueueName:   CreditQueue,
			RoutingKeys: []string{models.NotificationCreditLow, models.NotificationPaymentSucceeded},
		},
	}
}
