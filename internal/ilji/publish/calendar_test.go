package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/bdobrica/ilji/common/retry"
)

type calendarServer struct {
	mu     sync.Mutex
	paths  []string
	events []calendar.Event
	status int
	// before is served ahead of status, one per request.
	before []int
	srv    *httptest.Server
}

func newCalendarServer(t *testing.T, status int, before ...int) *calendarServer {
	t.Helper()
	cs := &calendarServer{status: status, before: before}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev calendar.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		cs.mu.Lock()
		cs.paths = append(cs.paths, r.URL.Path)
		cs.events = append(cs.events, ev)
		status := cs.status
		if len(cs.before) > 0 {
			status, cs.before = cs.before[0], cs.before[1:]
		}
		cs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":"refused"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"evt1","status":"confirmed"}`))
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func newTestCalendar(t *testing.T, cs *calendarServer, calendarID string) *Calendar {
	t.Helper()
	c, err := NewCalendar(context.Background(), CalendarConfig{
		CalendarID: calendarID,
		Options: []option.ClientOption{
			option.WithEndpoint(cs.srv.URL + "/"),
			option.WithoutAuthentication(),
		},
		Retry: retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	return c
}

func TestNewCalendar_RequiresCredentials(t *testing.T) {
	if _, err := NewCalendar(context.Background(), CalendarConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestCalendar_CreateRecordIsAllDay(t *testing.T) {
	tests := []struct {
		date, end string
	}{
		{"2026-02-18", "2026-02-19"},
		{"2026-02-28", "2026-03-01"},
		{"2026-12-31", "2027-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			cs := newCalendarServer(t, http.StatusOK)
			c := newTestCalendar(t, cs, "")

			e := Entry{Label: "운동", Date: tt.date, Title: Title("운동", tt.date), Body: "스쿼트"}
			if err := c.CreateRecord(context.Background(), e); err != nil {
				t.Fatalf("CreateRecord: %v", err)
			}
			if len(cs.events) != 1 {
				t.Fatalf("events = %d, want 1", len(cs.events))
			}
			if !strings.HasSuffix(cs.paths[0], "/calendars/primary/events") {
				t.Errorf("path = %q", cs.paths[0])
			}
			ev := cs.events[0]
			if ev.Summary != e.Title || ev.Description != "스쿼트" {
				t.Errorf("event = %+v", ev)
			}
			if ev.Start == nil || ev.Start.Date != tt.date || ev.Start.DateTime != "" {
				t.Errorf("start = %+v", ev.Start)
			}
			if ev.End == nil || ev.End.Date != tt.end {
				t.Errorf("end = %+v, want %s", ev.End, tt.end)
			}
		})
	}
}

func TestCalendar_CustomCalendarID(t *testing.T) {
	cs := newCalendarServer(t, http.StatusOK)
	c := newTestCalendar(t, cs, "team@group.calendar.google.com")
	if err := c.CreateRecord(context.Background(), Entry{Date: "2026-02-18", Title: "t"}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if !strings.Contains(cs.paths[0], "team@group.calendar.google.com") {
		t.Errorf("path = %q", cs.paths[0])
	}
}

func TestCalendar_Errors(t *testing.T) {
	cs := newCalendarServer(t, http.StatusForbidden)
	c := newTestCalendar(t, cs, "")

	if err := c.CreateRecord(context.Background(), Entry{Date: "18 Feb", Title: "t"}); err == nil {
		t.Error("bad date: want error")
	}
	if len(cs.events) != 0 {
		t.Errorf("bad date reached the API")
	}
	if err := c.CreateRecord(context.Background(), Entry{Date: "2026-02-18", Title: "t"}); err == nil {
		t.Error("HTTP 403: want error")
	}
}

func (cs *calendarServer) calls() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.paths)
}

func TestCalendar_RetriesRateLimitsAndServerErrors(t *testing.T) {
	cs := newCalendarServer(t, http.StatusOK, http.StatusServiceUnavailable, http.StatusTooManyRequests)
	c := newTestCalendar(t, cs, "")

	if err := c.CreateRecord(context.Background(), Entry{Date: "2026-02-18", Title: "t"}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if got := cs.calls(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestCalendar_ClientErrorIsNotRetried(t *testing.T) {
	cs := newCalendarServer(t, http.StatusForbidden)
	c := newTestCalendar(t, cs, "")

	if err := c.CreateRecord(context.Background(), Entry{Date: "2026-02-18", Title: "t"}); err == nil {
		t.Fatal("want error")
	}
	if got := cs.calls(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := map[string]time.Duration{
		"":    0,
		"abc": 0,
		"-1":  0,
		"2":   2 * time.Second,
		" 5 ": 5 * time.Second,
	}
	for in, want := range tests {
		if got := retryAfter(in); got != want {
			t.Errorf("retryAfter(%q) = %v, want %v", in, got, want)
		}
	}
}
