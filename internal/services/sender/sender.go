// Package sender отправляет письма по уведомлениям из очереди notifications.credit.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/smtp"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewSenderService создаёт новый экземпляр SenderService.
func NewSenderService(log *slog.Logger, transport smtp.TransportInterface) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// HandleNotification обработчик сообщения из очереди. Неизвестный вид
// уведомления подтверждается без отправки, чтобы не зациклить очередь.
// Нечитаемое тело помечается rabbitmq.ErrPermanent и в очередь не возвращается.
func (s *SenderService) HandleNotification(body []byte) error {
	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w: %v", rabbitmq.ErrPermanent, err)
	}
	if n.Email == "" {
		s.log.Warn("notification without recipient dropped", slog.String("kind", n.Kind))
		return nil
	}

	var subject, text string
	switch n.Kind {
	case models.NotificationCreditLow:
		subject = "Co-host: credits are running low"
		text = fmt.Sprintf("Hello!\r\n\r\nYour co-host credit balance is down to %.2f.\r\n"+
			"Top up a credit package to keep live sessions running without interruption.",
			n.CreditBalance)
	case models.NotificationPaymentSucceeded:
		subject = "Co-host: payment received"
		text = fmt.Sprintf("Hello!\r\n\r\nThank you for buying the %s package: %.0f credits were added.\r\n"+
			"Your balance is now %.2f credits.",
			n.Package, n.Credits, n.CreditBalance)
	default:
		s.log.Warn("unknown notification kind", slog.String("kind", n.Kind))
		return nil
	}

	return s.sendEmail([]string{n.Email}, subject, text)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.GetSMTPUser()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err := wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err := client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
