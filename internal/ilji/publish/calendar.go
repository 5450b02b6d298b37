package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bdobrica/ilji/common/retry"
	"github.com/bdobrica/ilji/internal/ilji/text"
)

// calendarDescriptionRunes bounds event descriptions.
const calendarDescriptionRunes = 8000

// CalendarConfig configures the Google Calendar adapter.
type CalendarConfig struct {
	// CredentialsFile is a service-account or OAuth client JSON file.
	CredentialsFile string
	// CalendarID defaults to "primary".
	CalendarID string
	// Options are extra client options (tests pass an endpoint here).
	Options []option.ClientOption
	Retry   retry.Config
}

// Calendar creates one all-day event per entry.
type Calendar struct {
	svc        *calendar.Service
	calendarID string
	retry      retry.Config
}

// NewCalendar returns the adapter, or ErrNotConfigured when neither a
// credentials file nor client options are given.
func NewCalendar(ctx context.Context, cfg CalendarConfig) (*Calendar, error) {
	if cfg.CredentialsFile == "" && len(cfg.Options) == 0 {
		return nil, fmt.Errorf("calendar: credentials file is required: %w", ErrNotConfigured)
	}
	opts := append([]option.ClientOption{}, cfg.Options...)
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: new service: %w", err)
	}
	id := cfg.CalendarID
	if id == "" {
		id = "primary"
	}
	rc := cfg.Retry
	if rc.MaxAttempts == 0 {
		rc = retry.DefaultConfig
	}
	return &Calendar{svc: svc, calendarID: id, retry: rc}, nil
}

// Name implements Adapter.
func (c *Calendar) Name() string { return "calendar" }

// CreateRecord inserts an all-day event on e.Date.
func (c *Calendar) CreateRecord(ctx context.Context, e Entry) error {
	day, err := time.Parse(time.DateOnly, e.Date)
	if err != nil {
		return fmt.Errorf("calendar: entry date %q: %w", e.Date, err)
	}
	desc, _ := text.Truncate(e.Body, calendarDescriptionRunes)
	ev := &calendar.Event{
		Summary:     e.Title,
		Description: desc,
		// All-day events end on the following day (exclusive).
		Start: &calendar.EventDateTime{Date: e.Date},
		End:   &calendar.EventDateTime{Date: day.AddDate(0, 0, 1).Format(time.DateOnly)},
	}
	return retry.Do(ctx, c.retry, func() error {
		_, err := c.svc.Events.Insert(c.calendarID, ev).Context(ctx).Do()
		return classifyGoogle(ctx, err)
	})
}

// classifyGoogle retries rate limits (honouring Retry-After), server errors
// and transport failures. Other API errors are permanent.
func classifyGoogle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	err = fmt.Errorf("calendar: insert event: %w", err)
	if ctx.Err() != nil {
		return retry.Permanent(err)
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests:
		return retry.After(err, retryAfter(gerr.Header.Get("Retry-After")))
	case gerr.Code >= 500:
		return err
	default:
		return retry.Permanent(err)
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
