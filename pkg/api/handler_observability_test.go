package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/obsbus"
)

type fakeSink struct {
	events []obsbus.Event
}

func (f *fakeSink) AppendEvent(ctx context.Context, e obsbus.Event) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSink) History(ctx context.Context, orgSlug string, filter obsbus.HistoryFilter) ([]obsbus.Event, error) {
	var out []obsbus.Event
	for _, e := range f.events {
		if e.OrgSlug == orgSlug {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestObservabilityHistoryHandler_RequiresOrgSlug(t *testing.T) {
	bus := obsbus.New(10, 10, &fakeSink{}, nil, 0, 0)
	s := &Server{echo: echo.New()}
	s.SetBus(bus)

	req := httptest.NewRequest(http.MethodGet, "/observability/history", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.observabilityHistoryHandler(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestObservabilityHistoryHandler_ScopesByOrgSlug(t *testing.T) {
	sink := &fakeSink{events: []obsbus.Event{
		{OrgSlug: "acme", EventType: "task.completed"},
		{OrgSlug: "other", EventType: "task.completed"},
	}}
	bus := obsbus.New(10, 10, sink, nil, 0, 0)
	s := &Server{echo: echo.New()}
	s.SetBus(bus)

	req := httptest.NewRequest(http.MethodGet, "/observability/history?orgSlug=acme", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	require.NoError(t, s.observabilityHistoryHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"orgSlug":"acme"`)
	assert.NotContains(t, rec.Body.String(), `"orgSlug":"other"`)
}

func TestObservabilityStreamHandler_DeliversPushedEventAndStopsOnCancel(t *testing.T) {
	bus := obsbus.New(10, 10, nil, nil, 0, 0)
	go bus.Run(context.Background())
	s := &Server{echo: echo.New()}
	s.SetBus(bus)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/observability/stream?userId=user-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- s.observabilityStreamHandler(c) }()

	time.Sleep(20 * time.Millisecond)
	bus.Push(obsbus.Event{UserID: "user-1", EventType: "task.started"})
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("observabilityStreamHandler did not return after context cancellation")
	}

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var sawEvent bool
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") && strings.Contains(scanner.Text(), "task.started") {
			sawEvent = true
		}
	}
	assert.True(t, sawEvent)
}
