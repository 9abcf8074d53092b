package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eburon/callerpro/pkg/callcenter/audio/audiotest"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerCompletesNaturally(t *testing.T) {
	dev := audiotest.NewDevice()
	dev.Finish("busy.mp3", 10*time.Millisecond)

	l := Start(context.Background(), dev, "busy.mp3", Options{Volume: 0.7})
	assert.Equal(t, StatePlaying, l.State())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, 1, dev.Started("busy.mp3"))
}

func TestLayerStopIsIdempotent(t *testing.T) {
	dev := audiotest.NewDevice()
	l := Start(context.Background(), dev, "ring.mp3", Options{Loop: true, Volume: 0.7})

	assert.Eventually(t, func() bool { return dev.Active("ring.mp3") == 1 }, time.Second, 5*time.Millisecond)

	l.Stop()
	l.Stop()
	assert.Equal(t, StateStopped, l.State())

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("layer did not finish after Stop")
	}
	l.Stop()
	assert.NoError(t, l.Err())
	assert.Equal(t, 0, dev.Active("ring.mp3"))
}

func TestLayerLoopsUntilStopped(t *testing.T) {
	dev := audiotest.NewDevice()
	dev.Finish("hold.mp3", time.Millisecond)

	l := Start(context.Background(), dev, "hold.mp3", Options{Loop: true, Volume: 0.7})
	assert.Eventually(t, func() bool { return dev.Started("hold.mp3") >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePlaying, l.State())

	l.Stop()
	<-l.Done()
}

func TestLayerFailureIsAsynchronous(t *testing.T) {
	dev := audiotest.NewDevice()
	dev.Fail("ring.mp3", errors.New("autoplay blocked"))

	l := Start(context.Background(), dev, "ring.mp3", Options{Volume: 0.7})
	require.NotNil(t, l)

	<-l.Done()
	assert.Equal(t, StateErrored, l.State())
	err := l.Err()
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePlayback, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "autoplay blocked")

	// stop after failure keeps the failure
	l.Stop()
	assert.Equal(t, StateErrored, l.State())
}

func TestLayerVolumeClamped(t *testing.T) {
	dev := audiotest.NewDevice()
	l := Start(context.Background(), dev, "a", Options{Volume: 3})
	defer l.Stop()
	assert.Equal(t, 1.0, l.Options().Volume)

	assert.Eventually(t, func() bool { return len(dev.Plays()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, dev.Plays()[0].Volume)
}

func TestSilentDeviceHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SilentDevice{Duration: time.Hour}.Play(ctx, "x", 1)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, SilentDevice{Duration: time.Millisecond}.Play(context.Background(), "x", 1))
}
