package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))
	assert.Equal(t, 1, s.Jobs())
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil)
	err := s.Add("broken", "every now and then", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Zero(t, s.Jobs())
}
