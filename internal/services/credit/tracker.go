// Package credit переводит использование функций (STT, TTS, AI, перевод) в списание кредитов.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/jsonfile"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/metrics"
	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// divergenceThreshold расхождение локального и серверного баланса, выше которого
// локальное значение сохраняется.
const divergenceThreshold = 1.0

// StatusStore локальный статус подписки.
type StatusStore interface {
	Load() (models.SubscriptionStatus, error)
	Update(fn func(*models.SubscriptionStatus) error) (models.SubscriptionStatus, error)
}

// HistogramStore дневная гистограмма использования.
type HistogramStore interface {
	Update(fn func(*models.UsageHistogram) error) (models.UsageHistogram, error)
}

// Outbox очередь неподтверждённых списаний.
type Outbox interface {
	Enqueue(ctx context.Context, d models.UsageDelta) (models.UsageDelta, error)
	PendingCredits(ctx context.Context, email string) (float64, error)
}

// Notifier будит воркер синхронизации.
type Notifier interface {
	Notify()
}

// RemoteValidator запрос актуального баланса с сервера.
type RemoteValidator interface {
	ValidateLicense(ctx context.Context, email, hardwareID string) (*models.ValidateResponse, error)
}

// Options параметры трекера.
type Options struct {
	Costs          CostTable
	ProductionMode bool
	Location       *time.Location
	Now            func() time.Time
	HardwareID     string
	// Email источник email, когда локального статуса ещё нет.
	Email func() string
}

// Tracker учитывает использование и списывает кредиты.
type Tracker struct {
	status   StatusStore
	hist     HistogramStore
	outbox   Outbox
	notifier Notifier
	remote   RemoteValidator
	opts     Options
	log      *slog.Logger
}

// NewTracker создаёт трекер.
func NewTracker(status StatusStore, hist HistogramStore, ob Outbox, notifier Notifier, remote RemoteValidator, opts Options, log *slog.Logger) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = models.WIB
	}
	if opts.Email == nil {
		opts.Email = func() string { return "" }
	}
	return &Tracker{
		status:   status,
		hist:     hist,
		outbox:   ob,
		notifier: notifier,
		remote:   remote,
		opts:     opts,
		log:      log,
	}
}

// TrackSTTUsage учитывает распознавание речи длительностью durationSeconds.
func (t *Tracker) TrackSTTUsage(ctx context.Context, durationSeconds float64, sttType string) (float64, error) {
	return t.track(ctx, models.ComponentSTT, variantOrDefault(sttType), durationSeconds)
}

// TrackTTSUsage учитывает синтез речи для text, единица стоимости символ.
func (t *Tracker) TrackTTSUsage(ctx context.Context, text, ttsType string) (float64, error) {
	return t.track(ctx, models.ComponentTTS, variantOrDefault(ttsType), float64(utf8.RuneCountInString(text)))
}

// TrackAIUsage учитывает запрос к AI с tokensUsed токенами.
func (t *Tracker) TrackAIUsage(ctx context.Context, tokensUsed int) (float64, error) {
	return t.track(ctx, models.ComponentAI, "", float64(tokensUsed))
}

// TrackTranslateUsage учитывает перевод wordCount слов.
func (t *Tracker) TrackTranslateUsage(ctx context.Context, wordCount int) (float64, error) {
	return t.track(ctx, models.ComponentTranslate, "", float64(wordCount))
}

func (t *Tracker) track(ctx context.Context, component models.Component, variant string, units float64) (float64, error) {
	const op = "credit.track"
	if units <= 0 {
		return 0, nil
	}
	cost := t.opts.Costs.Cost(component, variant, units)
	now := t.opts.Now()

	ev := models.UsageEvent{
		Timestamp: now,
		Component: component,
		Variant:   variant,
		Units:     units,
		Credits:   cost,
	}
	_, err := t.hist.Update(func(h *models.UsageHistogram) error {
		h.ResetIfStale(models.DateKey(now, t.opts.Location))
		h.Record(ev)
		return nil
	})
	if err != nil {
		t.log.Warn("failed to record usage histogram", sl.Op(op), sl.Err(err))
	}
	metrics.CreditsTracked.WithLabelValues(string(component)).Add(cost)

	t.log.Debug("usage tracked",
		slog.String("component", string(component)),
		slog.String("variant", variant),
		slog.Float64("units", units),
		slog.Float64("credits", cost),
	)

	if err := t.UpdateSubscriptionUsage(ctx, cost); err != nil {
		return cost, fmt.Errorf("%s: %w", op, err)
	}
	return cost, nil
}

// UpdateSubscriptionUsage списывает creditsUsed. Списание сначала попадает в
// outbox и отправляется на сервер воркером синхронизации. В режиме разработки
// баланс затем уменьшается локально; без записи в outbox локальный баланс не меняется.
func (t *Tracker) UpdateSubscriptionUsage(ctx context.Context, creditsUsed float64) error {
	const op = "credit.UpdateSubscriptionUsage"
	if creditsUsed < 0 || math.IsNaN(creditsUsed) {
		return fmt.Errorf("%s: invalid credits %v", op, creditsUsed)
	}
	now := t.opts.Now()

	st, err := t.status.Load()
	if err != nil || !st.LoggedIn() {
		return fmt.Errorf("%s: %w", op, models.ErrNotLoggedIn)
	}

	delta, err := t.outbox.Enqueue(ctx, models.UsageDelta{
		Email:       st.Email,
		CreditsUsed: creditsUsed,
		HoursUsed:   creditsUsed,
		Timestamp:   now,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	t.log.Debug("usage delta queued", slog.String("id", delta.ID))

	if !t.opts.ProductionMode {
		updated, err := t.status.Update(func(s *models.SubscriptionStatus) error {
			if s.Email != st.Email {
				return models.ErrNotLoggedIn
			}
			s.ApplyDebit(creditsUsed)
			s.UpdatedAt = &now
			return nil
		})
		if err != nil {
			// Списание уже в outbox: баланс выровняется после синхронизации.
			t.log.Warn("local debit failed, waiting for server sync", sl.Err(err))
		} else {
			t.log.Info("local balance debited",
				slog.Float64("credits", creditsUsed),
				slog.Float64("balance", updated.CreditBalance),
			)
		}
	}

	if t.notifier != nil {
		t.notifier.Notify()
	}
	return nil
}

// GetCurrentCreditBalance возвращает локальный баланс. Сервер запрашивается,
// только если локального статуса нет.
func (t *Tracker) GetCurrentCreditBalance(ctx context.Context) (float64, error) {
	const op = "credit.GetCurrentCreditBalance"
	st, err := t.status.Load()
	if err == nil && st.LoggedIn() {
		return st.CreditBalance, nil
	}
	if err != nil && !errors.Is(err, jsonfile.ErrNotExist) {
		t.log.Warn("local status unreadable, asking server", sl.Err(err))
	}

	email := t.opts.Email()
	if email == "" {
		return 0, fmt.Errorf("%s: %w", op, models.ErrNotLoggedIn)
	}
	expected, _, err := t.remoteBalance(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return expected, nil
}

// Reconcile сверяет локальный баланс с серверным за вычетом ещё не отправленных
// списаний. При расхождении больше 1.0 остаётся локальное значение, иначе
// принимается серверное.
func (t *Tracker) Reconcile(ctx context.Context) (float64, error) {
	const op = "credit.Reconcile"
	st, err := t.status.Load()
	if err != nil || !st.LoggedIn() {
		return 0, fmt.Errorf("%s: %w", op, models.ErrNotLoggedIn)
	}

	expected, data, err := t.remoteBalance(ctx, st.Email)
	if err != nil {
		t.log.Warn("server unreachable, keeping local balance", sl.Op(op), sl.Err(err))
		return st.CreditBalance, fmt.Errorf("%s: %w", op, err)
	}

	if math.Abs(st.CreditBalance-expected) > divergenceThreshold {
		t.log.Warn("local balance diverges from server, keeping local",
			slog.Float64("local", st.CreditBalance),
			slog.Float64("server", expected),
		)
		return st.CreditBalance, nil
	}

	now := t.opts.Now()
	pending := data.CreditBalance - expected
	updated, err := t.status.Update(func(s *models.SubscriptionStatus) error {
		if s.Email != st.Email {
			return models.ErrNotLoggedIn
		}
		s.CreditBalance = expected
		s.CreditUsed = data.CreditUsed + pending
		s.LastSync = &now
		return nil
	})
	if err != nil {
		return st.CreditBalance, fmt.Errorf("%s: %w", op, err)
	}
	return updated.CreditBalance, nil
}

func (t *Tracker) remoteBalance(ctx context.Context, email string) (float64, *models.AccountData, error) {
	if t.remote == nil {
		return 0, nil, errors.New("remote validator is not configured")
	}
	resp, err := t.remote.ValidateLicense(ctx, email, t.opts.HardwareID)
	if err != nil {
		return 0, nil, err
	}
	if resp.Data == nil {
		return 0, nil, errors.New("server response has no account data")
	}
	pending, err := t.outbox.PendingCredits(ctx, email)
	if err != nil {
		return 0, nil, err
	}
	return max(0, resp.Data.CreditBalance-pending), resp.Data, nil
}

func variantOrDefault(v string) string {
	if v == "" {
		return VariantDefault
	}
	return v
}
