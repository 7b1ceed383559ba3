package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erkineren/homework-monitor/internal/apperror"
	"github.com/erkineren/homework-monitor/internal/models"
	"github.com/erkineren/homework-monitor/internal/practicum"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies []string
	errs   []error
	since  []int64
	calls  int
	onCall func(int)
}

// Statuses replays bodies in order and keeps returning the last one.
func (f *fakeFetcher) Statuses(ctx context.Context, since int64) (any, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.since = append(f.since, since)
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(i + 1)
	}

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.bodies) == 0 {
		panic("fakeFetcher: no bodies")
	}
	raw := f.bodies[len(f.bodies)-1]
	if i < len(f.bodies) {
		raw = f.bodies[i]
	}

	var body any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSender struct {
	sent []string
	err  error
}

func (s *fakeSender) Send(ctx context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

type fakeJournal struct {
	recorded []models.Notification
	cleaned  []time.Duration
	err      error
}

func (j *fakeJournal) Close() error { return nil }

func (j *fakeJournal) RecordNotification(ctx context.Context, n models.Notification) error {
	if j.err != nil {
		return j.err
	}
	j.recorded = append(j.recorded, n)
	return nil
}

func (j *fakeJournal) CleanOldNotifications(ctx context.Context, olderThan time.Duration) error {
	j.cleaned = append(j.cleaned, olderThan)
	return j.err
}

const (
	approvedBody  = `{"homeworks":[{"homework_name":"hw1","status":"approved"}]}`
	reviewingBody = `{"homeworks":[{"homework_name":"hw1","status":"reviewing"}]}`
	emptyBody     = `{"homeworks":[]}`
)

func newTestPoller(fetcher Fetcher, sender Sender, journal *fakeJournal, opts Options) (*Poller, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	if opts.Interval == 0 {
		opts.Interval = time.Millisecond
	}
	return New(fetcher, sender, journal, logger, opts), &buf
}

func logMessages(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func errorLogs(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var msgs []string
	for _, entry := range logMessages(t, buf) {
		if entry["level"] == "error" {
			msgs = append(msgs, entry["message"].(string))
		}
	}
	return msgs
}

func TestCycleSendsOnFirstStatus(t *testing.T) {
	sender := &fakeSender{}
	journal := &fakeJournal{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{approvedBody}}, sender, journal, Options{ChatID: "12345"})

	require.NoError(t, p.Cycle(context.Background()))

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "hw1")
	assert.Contains(t, sender.sent[0], models.Verdicts[models.StatusApproved])
	assert.Equal(t, sender.sent[0], p.LastMessage())

	require.Len(t, journal.recorded, 1)
	assert.Equal(t, "12345", journal.recorded[0].ChatID)
	assert.Equal(t, "hw1", journal.recorded[0].HomeworkName)
	assert.Equal(t, models.StatusApproved, journal.recorded[0].Status)
	assert.Equal(t, sender.sent[0], journal.recorded[0].Message)
}

func TestCycleSendsFormattedNotification(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{reviewingBody}}, sender, &fakeJournal{}, Options{})

	require.NoError(t, p.Cycle(context.Background()))

	_, want, err := practicum.FormatNotification(map[string]any{"homework_name": "hw1", "status": "reviewing"})
	require.NoError(t, err)
	assert.Equal(t, []string{want}, sender.sent)
}

func TestCycleUnchangedStatusIsNoop(t *testing.T) {
	sender := &fakeSender{}
	journal := &fakeJournal{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{approvedBody, approvedBody}}, sender, journal, Options{})

	require.NoError(t, p.Cycle(context.Background()))
	require.NoError(t, p.Cycle(context.Background()))

	assert.Len(t, sender.sent, 1)
	assert.Len(t, journal.recorded, 1)
}

func TestCycleStatusChangeSendsAgain(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{reviewingBody, approvedBody}}, sender, &fakeJournal{}, Options{})

	require.NoError(t, p.Cycle(context.Background()))
	require.NoError(t, p.Cycle(context.Background()))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0], models.Verdicts[models.StatusReviewing])
	assert.Contains(t, sender.sent[1], models.Verdicts[models.StatusApproved])
}

func TestCycleEmptyHomeworks(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{emptyBody}}, sender, &fakeJournal{}, Options{})

	assert.NoError(t, p.Cycle(context.Background()))
	assert.Empty(t, sender.sent)
	assert.Empty(t, p.LastMessage())
}

func TestCycleUnknownStatus(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{`{"homeworks":[{"homework_name":"hw1","status":"unknown"}]}`}}, sender, &fakeJournal{}, Options{})

	err := p.Cycle(context.Background())
	assert.ErrorIs(t, err, apperror.ErrUnknownStatus)
	assert.Empty(t, sender.sent)
}

func TestCycleMissingHomeworksKey(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{`{"current_date":1}`}}, sender, &fakeJournal{}, Options{})

	err := p.Cycle(context.Background())
	assert.ErrorIs(t, err, apperror.ErrMissingKey)
	assert.Empty(t, sender.sent)
}

func TestCycleNotifyFailureKeepsLastMessage(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram is down")}
	journal := &fakeJournal{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{approvedBody}}, sender, journal, Options{})

	err := p.Cycle(context.Background())
	assert.ErrorIs(t, err, apperror.ErrNotify)
	assert.Empty(t, p.LastMessage())
	assert.Empty(t, journal.recorded)

	sender.err = nil
	require.NoError(t, p.Cycle(context.Background()))
	assert.Len(t, sender.sent, 1)
}

func TestCycleJournalFailureIsNotFatal(t *testing.T) {
	sender := &fakeSender{}
	journal := &fakeJournal{err: errors.New("database gone")}
	p, buf := newTestPoller(&fakeFetcher{bodies: []string{approvedBody}}, sender, journal, Options{})

	require.NoError(t, p.Cycle(context.Background()))
	assert.Len(t, sender.sent, 1)
	assert.NotEmpty(t, p.LastMessage())
	assert.Contains(t, buf.String(), "Failed to record notification")
}

func TestCycleFixedTimestamp(t *testing.T) {
	fetcher := &fakeFetcher{bodies: []string{approvedBody}}
	p, _ := newTestPoller(fetcher, &fakeSender{}, &fakeJournal{}, Options{FromDate: 1704056618})
	p.now = func() time.Time { return time.Unix(1800000000, 0) }

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Cycle(context.Background()))
	}

	assert.Equal(t, []int64{1704056618, 1704056618, 1704056618}, fetcher.since)
	assert.Equal(t, int64(1704056618), p.Since())
}

func TestCycleAdvancingTimestamp(t *testing.T) {
	fetcher := &fakeFetcher{
		bodies: []string{approvedBody, emptyBody, emptyBody, emptyBody},
		errs:   []error{nil, nil, apperror.Transport(errors.New("timeout")), nil},
	}
	p, _ := newTestPoller(fetcher, &fakeSender{}, &fakeJournal{}, Options{FromDate: 100, AdvanceTimestamp: true})

	clock := int64(1000)
	p.now = func() time.Time {
		clock += 10
		return time.Unix(clock, 0)
	}

	require.NoError(t, p.Cycle(context.Background()))
	require.NoError(t, p.Cycle(context.Background()))
	require.Error(t, p.Cycle(context.Background()))
	require.NoError(t, p.Cycle(context.Background()))

	// The failed third cycle must not move the window forward.
	assert.Equal(t, []int64{100, 1010, 1030, 1030}, fetcher.since)
}

func TestTickLogsEachErrorKind(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		body    string
		wantMsg string
	}{
		{"transport", apperror.Transport(errors.New("dial tcp")), "", "Review API is unreachable"},
		{"status", &apperror.StatusError{Code: 500}, "", "Review API did not answer with status 200"},
		{"shape", nil, `{"current_date":1}`, "Review API response does not match the documented format"},
		{"unknown status", nil, `{"homeworks":[{"homework_name":"hw1","status":"lost"}]}`, "Latest homework has an undocumented status"},
		{"unhandled", errors.New("boom"), "", "Unexpected failure during homework status check"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{errs: []error{tt.err}, bodies: []string{tt.body}}
			p, buf := newTestPoller(fetcher, &fakeSender{}, &fakeJournal{}, Options{})

			err := p.RunOnce(context.Background())
			assert.Error(t, err)
			assert.Equal(t, []string{tt.wantMsg}, errorLogs(t, buf))
		})
	}
}

func TestTickLogsNotifyFailure(t *testing.T) {
	p, buf := newTestPoller(&fakeFetcher{bodies: []string{approvedBody}}, &fakeSender{err: errors.New("forbidden")}, &fakeJournal{}, Options{})

	assert.ErrorIs(t, p.RunOnce(context.Background()), apperror.ErrNotify)
	assert.Equal(t, []string{"Failed to send notification to Telegram"}, errorLogs(t, buf))
}

func TestTickRecoversFromPanic(t *testing.T) {
	p, buf := newTestPoller(&fakeFetcher{}, &fakeSender{}, &fakeJournal{}, Options{})

	err := p.RunOnce(context.Background())
	assert.ErrorContains(t, err, "panic")
	assert.Equal(t, []string{"Unexpected failure during homework status check"}, errorLogs(t, buf))
}

func TestTickCleansJournal(t *testing.T) {
	journal := &fakeJournal{}
	p, _ := newTestPoller(&fakeFetcher{bodies: []string{emptyBody}}, &fakeSender{}, journal, Options{JournalRetention: time.Hour})

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, []time.Duration{time.Hour}, journal.cleaned)
}

func TestRunContinuesAfterErrorsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{
		bodies: []string{approvedBody},
		errs:   []error{&apperror.StatusError{Code: 502}, apperror.Transport(errors.New("reset"))},
	}
	fetcher.onCall = func(n int) {
		if n == 4 {
			cancel()
		}
	}
	sender := &fakeSender{}
	p, buf := newTestPoller(fetcher, sender, &fakeJournal{}, Options{Interval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}

	assert.Equal(t, 4, fetcher.Calls())
	assert.Len(t, sender.sent, 1)
	assert.Len(t, errorLogs(t, buf), 2)
	assert.Contains(t, buf.String(), "Poller shutting down")
}

func TestRunInterruptedFetchIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{errs: []error{apperror.Transport(context.Canceled)}, bodies: []string{emptyBody}}
	p, buf := newTestPoller(fetcher, &fakeSender{}, &fakeJournal{}, Options{Interval: time.Hour})

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, errorLogs(t, buf))
}
