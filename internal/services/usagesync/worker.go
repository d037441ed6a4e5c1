// Package usagesync отправляет накопленные в outbox списания на сервер лицензий.
package usagesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/licenseclient"
	"github.com/magabrotheeeer/cohost-credits/internal/metrics"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// Queue outbox неподтверждённых списаний.
type Queue interface {
	Due(ctx context.Context, limit int) ([]models.UsageDelta, error)
	Ack(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, cause error, next time.Time, maxAttempts int) (bool, error)
	PendingCredits(ctx context.Context, email string) (float64, error)
	Stats(ctx context.Context) (pending, dead int64, err error)
}

// Remote приём списаний сервером.
type Remote interface {
	UpdateUsage(ctx context.Context, usage models.UpdateUsageRequest) (*models.UpdateUsageResponse, error)
}

// StatusStore локальный статус подписки.
type StatusStore interface {
	Update(fn func(*models.SubscriptionStatus) error) (models.SubscriptionStatus, error)
}

// Worker фоновая отправка списаний.
type Worker struct {
	queue  Queue
	remote Remote
	status StatusStore
	cfg    config.UsageSync
	now    func() time.Time
	notify chan struct{}
	log    *slog.Logger
}

// NewWorker создаёт воркер.
func NewWorker(queue Queue, remote Remote, status StatusStore, cfg config.UsageSync, log *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &Worker{
		queue:  queue,
		remote: remote,
		status: status,
		cfg:    cfg,
		now:    time.Now,
		notify: make(chan struct{}, 1),
		log:    log,
	}
}

// Notify просит воркер отправить очередь, не дожидаясь тикера. Не блокирует.
func (w *Worker) Notify() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run отправляет очередь по тикеру и по Notify до отмены ctx.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("usage sync worker started", slog.Duration("interval", w.cfg.Interval))
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.Flush(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("usage sync flush failed", sl.Err(err))
		}
		select {
		case <-ctx.Done():
			w.log.Info("usage sync worker stopped")
			return nil
		case <-ticker.C:
		case <-w.notify:
		}
	}
}

// Flush отправляет одну пачку готовых к отправке списаний. Возвращает число
// подтверждённых сервером. При временной ошибке сети пачка прерывается.
func (w *Worker) Flush(ctx context.Context) (int, error) {
	const op = "usagesync.Flush"
	defer w.refreshGauges(ctx)

	due, err := w.queue.Due(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	sent := 0
	for _, d := range due {
		resp, err := w.push(ctx, d)
		if err != nil {
			permanent := licenseclient.IsPermanent(err)
			w.fail(ctx, d, err, permanent)
			if permanent {
				continue
			}
			return sent, fmt.Errorf("%s: %w", op, err)
		}

		metrics.SyncAttempts.WithLabelValues("success").Inc()
		if err := w.queue.Ack(ctx, d.ID); err != nil {
			w.log.Error("failed to ack usage delta", slog.String("id", d.ID), sl.Err(err))
			continue
		}
		sent++
		w.applyRemaining(ctx, d.Email, resp.RemainingCredit)
	}
	return sent, nil
}

func (w *Worker) push(ctx context.Context, d models.UsageDelta) (*models.UpdateUsageResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.InitialBackoff
	policy.MaxInterval = w.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	var resp *models.UpdateUsageResponse
	operation := func() error {
		var err error
		resp, err = w.remote.UpdateUsage(ctx, models.UpdateUsageRequest{
			EventID:     d.ID,
			Email:       d.Email,
			CreditsUsed: d.CreditsUsed,
			HoursUsed:   d.HoursUsed,
			Timestamp:   d.Timestamp,
		})
		if err != nil && licenseclient.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.SyncAttempts.WithLabelValues("retry").Inc()
		w.log.Debug("usage push failed, retrying", slog.String("id", d.ID), slog.Duration("next", next), sl.Err(err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, w.cfg.MaxRetries), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

func (w *Worker) fail(ctx context.Context, d models.UsageDelta, cause error, permanent bool) {
	maxAttempts := w.cfg.MaxAttempts
	result := "error"
	if permanent {
		maxAttempts = 1
		result = "rejected"
	}
	metrics.SyncAttempts.WithLabelValues(result).Inc()

	next := w.now().Add(w.retryDelay(d.Attempts))
	dead, err := w.queue.Fail(ctx, d.ID, cause, next, maxAttempts)
	if err != nil {
		w.log.Error("failed to record usage push failure", slog.String("id", d.ID), sl.Err(err))
		return
	}
	if dead {
		w.log.Error("usage delta dropped after failed attempts",
			slog.String("id", d.ID),
			slog.Float64("credits", d.CreditsUsed),
			sl.Err(cause),
		)
		return
	}
	w.log.Warn("usage push postponed", slog.String("id", d.ID), slog.Time("next_attempt", next), sl.Err(cause))
}

// retryDelay задержка до следующей пачки для записи с attempts неудачами.
func (w *Worker) retryDelay(attempts int) time.Duration {
	delay := w.cfg.InitialBackoff
	for range attempts {
		delay *= 2
		if delay >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	return delay
}

// applyRemaining выставляет локальный баланс по ответу сервера за вычетом
// ещё не отправленных списаний.
func (w *Worker) applyRemaining(ctx context.Context, email string, remaining float64) {
	pending, err := w.queue.PendingCredits(ctx, email)
	if err != nil {
		w.log.Warn("failed to read pending usage", sl.Err(err))
		return
	}
	now := w.now()
	_, err = w.status.Update(func(s *models.SubscriptionStatus) error {
		if s.Email != email || s.Status == models.StatusLoggedOut {
			return errSkip
		}
		s.CreditBalance = max(0, remaining-pending)
		s.LastSync = &now
		return nil
	})
	if err != nil && !errors.Is(err, errSkip) {
		w.log.Warn("failed to update local balance", sl.Err(err))
	}
}

var errSkip = errors.New("status belongs to another user")

func (w *Worker) refreshGauges(ctx context.Context) {
	pending, dead, err := w.queue.Stats(ctx)
	if err != nil {
		return
	}
	metrics.OutboxPending.Set(float64(pending))
	metrics.OutboxDead.Set(float64(dead))
}
