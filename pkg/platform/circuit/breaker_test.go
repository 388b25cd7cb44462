package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outcome is one recorded call result; true is a success.
type outcome bool

const (
	ok   outcome = true
	fail outcome = false
)

func record(b *Breaker, outcomes ...outcome) Change {
	var change Change
	for _, o := range outcomes {
		if o {
			_, change = b.RecordSuccess()
		} else {
			_, change = b.RecordFailure()
		}
	}
	return change
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		outcomes   []outcome
		wantState  State
		wantChange Change
	}{
		{
			name:      "stays closed below the failure threshold",
			opts:      []Option{WithFailureThreshold(3)},
			outcomes:  []outcome{fail, fail},
			wantState: StateClosed,
		},
		{
			name:       "opens on the threshold failure",
			opts:       []Option{WithFailureThreshold(3)},
			outcomes:   []outcome{fail, fail, fail},
			wantState:  StateOpen,
			wantChange: Change{Opened: true},
		},
		{
			name:      "a lookup success between failures restarts the count",
			opts:      []Option{WithFailureThreshold(3)},
			outcomes:  []outcome{fail, fail, ok, fail, fail},
			wantState: StateClosed,
		},
		{
			name:      "one success is not enough to close",
			opts:      []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes:  []outcome{fail, ok},
			wantState: StateOpen,
		},
		{
			name:       "closes after the success threshold",
			opts:       []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes:   []outcome{fail, ok, ok},
			wantState:  StateClosed,
			wantChange: Change{Closed: true},
		},
		{
			name:      "a failure while open restarts the recovery count",
			opts:      []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes:  []outcome{fail, ok, fail, ok},
			wantState: StateOpen,
		},
		{
			name:      "non-positive thresholds keep the defaults",
			opts:      []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			outcomes:  []outcome{fail, fail, fail, fail},
			wantState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("directory", tt.opts...)
			change := record(b, tt.outcomes...)
			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantChange, change)
		})
	}
}

func TestBreakerFallbackAnswers(t *testing.T) {
	b := New("directory", WithFailureThreshold(2))
	assert.Equal(t, "directory", b.Name())

	fallback, _ := b.RecordFailure()
	assert.False(t, fallback, "closed circuit keeps calling the directory")
	fallback, _ = b.RecordFailure()
	assert.True(t, fallback)

	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.Equal(t, Change{}, change, "already open")

	primary, _ := b.RecordSuccess()
	assert.False(t, primary)
}

func TestBreakerReset(t *testing.T) {
	b := New("directory", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, "closed", b.State().String())
}

func TestBreakerConcurrentFailuresOpenOnce(t *testing.T) {
	b := New("directory", WithFailureThreshold(5))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, change := b.RecordFailure(); change.Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, "open", b.State().String())
}
