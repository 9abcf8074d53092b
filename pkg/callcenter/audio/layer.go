package audio

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
)

// State is the playback state of a Layer.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StateStopped State = "stopped"
	StateErrored State = "errored"
)

// Options control a single layer.
type Options struct {
	Loop   bool
	Volume float64
}

// Layer is one playing audio asset. It owns exactly one physical output on
// its device. Starting a layer never stops another.
type Layer struct {
	asset  string
	opts   Options
	device Device
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	err   error
}

// Start begins playback in the background and returns immediately.
// Failures are reported through Done and Err, never returned here.
func Start(ctx context.Context, device Device, asset string, opts Options) *Layer {
	opts.Volume = clampVolume(opts.Volume)

	ctx, cancel := context.WithCancel(ctx)
	l := &Layer{
		asset:  asset,
		opts:   opts,
		device: device,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StatePlaying,
	}
	go l.run(ctx)
	return l
}

func (l *Layer) run(ctx context.Context) {
	defer close(l.done)
	defer l.cancel()

	for {
		err := l.device.Play(ctx, l.asset, l.opts.Volume)
		if ctx.Err() != nil {
			l.finish(StateStopped, nil)
			return
		}
		if err != nil {
			l.finish(StateErrored, apperrors.New(apperrors.ErrCodePlayback,
				fmt.Sprintf("failed to play %s", l.asset), err))
			return
		}
		if !l.opts.Loop {
			l.finish(StateStopped, nil)
			return
		}
	}
}

func (l *Layer) finish(state State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StatePlaying {
		return
	}
	l.state = state
	l.err = err
}

// Stop halts playback. The next Start of the same asset plays from the
// beginning. Stop is idempotent and safe on a finished layer.
func (l *Layer) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.state == StatePlaying {
		l.state = StateStopped
	}
	l.mu.Unlock()
	l.cancel()
}

// Done is closed exactly once, when playback has ended for any reason.
func (l *Layer) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the layer finishes or ctx is done.
func (l *Layer) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the PlaybackError that ended the layer, if any.
func (l *Layer) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Layer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Layer) Asset() string {
	return l.asset
}

func (l *Layer) Options() Options {
	return l.opts
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
