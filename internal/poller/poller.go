// Package poller runs the fetch, compare and notify cycle against the review API.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erkineren/homework-monitor/internal/apperror"
	"github.com/erkineren/homework-monitor/internal/models"
	"github.com/erkineren/homework-monitor/internal/practicum"
	"github.com/erkineren/homework-monitor/internal/store"
	"github.com/rs/zerolog"
)

type Fetcher interface {
	Statuses(ctx context.Context, since int64) (any, error)
}

type Sender interface {
	Send(ctx context.Context, text string) error
}

type Options struct {
	Interval time.Duration
	FromDate int64
	// AdvanceTimestamp moves from_date to the start of the last cycle that
	// finished without error. When false the same from_date is sent forever.
	AdvanceTimestamp bool
	ChatID           string
	JournalRetention time.Duration
}

type Poller struct {
	fetcher Fetcher
	sender  Sender
	journal store.Journal
	logger  zerolog.Logger

	interval  time.Duration
	advance   bool
	chatID    string
	retention time.Duration
	now       func() time.Time

	since       int64
	lastMessage string
}

func New(fetcher Fetcher, sender Sender, journal store.Journal, logger zerolog.Logger, opts Options) *Poller {
	if journal == nil {
		journal = store.Nop{}
	}

	return &Poller{
		fetcher:   fetcher,
		sender:    sender,
		journal:   journal,
		logger:    logger,
		interval:  opts.Interval,
		advance:   opts.AdvanceTimestamp,
		chatID:    opts.ChatID,
		retention: opts.JournalRetention,
		now:       time.Now,
		since:     opts.FromDate,
	}
}

// Run polls until ctx is cancelled. The first cycle starts immediately and
// every following one starts a full interval after the previous one ended.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.interval).
		Int64("from_date", p.since).
		Bool("advance_timestamp", p.advance).
		Msg("Poller started")

	for {
		p.tick(ctx)
		if ctx.Err() != nil {
			p.logger.Info().Msg("Poller shutting down")
			return nil
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info().Msg("Poller shutting down")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce performs a single cycle and returns its error after logging it.
func (p *Poller) RunOnce(ctx context.Context) error {
	return p.tick(ctx)
}

func (p *Poller) tick(ctx context.Context) error {
	p.logger.Debug().Int64("from_date", p.since).Msg("Starting homework status check")

	err := p.safeCycle(ctx)
	if err != nil {
		p.handleError(ctx, err)
	}

	if p.retention > 0 {
		if cleanErr := p.journal.CleanOldNotifications(ctx, p.retention); cleanErr != nil {
			p.logger.Warn().Err(cleanErr).Msg("Failed to clean notification journal")
		}
	}

	return err
}

// safeCycle turns a panic inside a cycle into an error so the loop survives it.
func (p *Poller) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during homework status check: %v", r)
		}
	}()
	return p.Cycle(ctx)
}

// Cycle fetches the latest homework status and notifies the chat when the
// resulting message differs from the last one sent.
func (p *Poller) Cycle(ctx context.Context) error {
	started := p.now()

	body, err := p.fetcher.Statuses(ctx, p.since)
	if err != nil {
		return err
	}

	record, ok, err := practicum.ValidateResponse(body)
	if err != nil {
		return err
	}
	if !ok {
		p.logger.Debug().Msg("No homework updates since last check")
		p.advanceSince(started)
		return nil
	}

	hw, message, err := practicum.FormatNotification(record)
	if err != nil {
		return err
	}

	if message == p.lastMessage {
		p.logger.Debug().Str("homework", hw.Name).Msg("Homework status has not changed")
		p.advanceSince(started)
		return nil
	}

	if err := p.sender.Send(ctx, message); err != nil {
		return apperror.Notify(err)
	}
	p.lastMessage = message
	p.logger.Debug().
		Str("homework", hw.Name).
		Str("status", string(hw.Status)).
		Msg("Notification sent to Telegram")

	p.record(ctx, hw, message, p.now())
	p.advanceSince(started)
	return nil
}

func (p *Poller) LastMessage() string {
	return p.lastMessage
}

func (p *Poller) Since() int64 {
	return p.since
}

func (p *Poller) advanceSince(started time.Time) {
	if p.advance {
		p.since = started.Unix()
	}
}

func (p *Poller) record(ctx context.Context, hw models.Homework, message string, sentAt time.Time) {
	err := p.journal.RecordNotification(ctx, models.Notification{
		ChatID:       p.chatID,
		HomeworkName: hw.Name,
		Status:       hw.Status,
		Message:      message,
		SentAt:       sentAt,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("homework", hw.Name).Msg("Failed to record notification")
	}
}

// handleError is the single place where cycle errors become log lines.
func (p *Poller) handleError(ctx context.Context, err error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		p.logger.Debug().Err(err).Msg("Homework status check interrupted")
		return
	}

	p.logger.Error().Err(err).Msg(describe(err))
}

func describe(err error) string {
	switch {
	case errors.Is(err, apperror.ErrTransport):
		return "Review API is unreachable"
	case errors.Is(err, apperror.ErrUnexpectedStatus):
		return "Review API did not answer with status 200"
	case errors.Is(err, apperror.ErrAPIShape):
		return "Review API response does not match the documented format"
	case errors.Is(err, apperror.ErrUnknownStatus):
		return "Latest homework has an undocumented status"
	case errors.Is(err, apperror.ErrNotify):
		return "Failed to send notification to Telegram"
	default:
		return "Unexpected failure during homework status check"
	}
}
