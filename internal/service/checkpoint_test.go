package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"vpatient/internal/domain"
)

type stubHost struct {
	hasState bool
}

func (h stubHost) GetState() (domain.PageState, bool) { return "{}", h.hasState }
func (stubHost) IsValid() bool                         { return true }
func (stubHost) Identity() domain.PageIdentity {
	return domain.PageIdentity{PageID: "1", PatientID: "7"}
}

type countingClient struct {
	saves atomic.Int32
}

func (c *countingClient) Save(context.Context, string, domain.PageState) error {
	c.saves.Add(1)
	return nil
}

func (c *countingClient) Navigate(context.Context, string, string, domain.PageState) (*domain.NavigateResponse, error) {
	return &domain.NavigateResponse{Redirect: "/"}, nil
}

func newCheckpointFixture(t *testing.T, host domain.PageHost) (*CheckpointScheduler, *PageController, *countingClient) {
	t.Helper()
	client := &countingClient{}
	pages, err := NewPageController(PageControllerConfig{Host: host, Client: client, Emitter: &MockEmitter{}})
	require.NoError(t, err)
	s, err := NewCheckpointScheduler(slog.Default(), pages, "@every 1h")
	require.NoError(t, err)
	return s, pages, client
}

func TestCheckpointScheduler_InvalidSchedule(t *testing.T) {
	_, pages, _ := newCheckpointFixture(t, stubHost{hasState: true})
	_, err := NewCheckpointScheduler(nil, pages, "every now and then")
	require.ErrorContains(t, err, "parse checkpoint schedule")

	_, err = NewCheckpointScheduler(nil, nil, "@every 1m")
	require.ErrorContains(t, err, "page controller is required")
}

func TestCheckpointScheduler_SavesWhileHookActive(t *testing.T) {
	s, pages, client := newCheckpointFixture(t, stubHost{hasState: true})

	s.checkpoint()
	require.EqualValues(t, 1, client.saves.Load())

	pages.DisableAutosave(context.Background())
	s.checkpoint()
	require.EqualValues(t, 1, client.saves.Load())
}

func TestCheckpointScheduler_SkipsWithoutState(t *testing.T) {
	s, _, client := newCheckpointFixture(t, stubHost{})
	s.checkpoint()
	require.Zero(t, client.saves.Load())
}

func TestCheckpointScheduler_StartStop(t *testing.T) {
	s, _, _ := newCheckpointFixture(t, stubHost{hasState: true})
	s.Start(context.Background())
	s.Stop()
}
