package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eburon/callerpro/pkg/callcenter/audio/audiotest"
	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/eburon/callerpro/pkg/callcenter/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAssets = Assets{Ring: "ring", Hold: "hold", Busy: "busy", Ambient: "ambient"}

func newTestDirector(t *testing.T) (*Director, *audiotest.Device, *metrics.Metrics) {
	t.Helper()
	dev := audiotest.NewDevice()
	m := metrics.New("test")
	return NewDirector(dev, DirectorConfig{Assets: testAssets, Metrics: m}), dev, m
}

func TestDirectorAcquireIsExclusive(t *testing.T) {
	d, _, _ := newTestDirector(t)

	out, err := d.Acquire("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", d.Owner())

	_, err = d.Acquire("s2")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAudioBusy, apperrors.CodeOf(err))

	out.Release()
	assert.Equal(t, "", d.Owner())

	next, err := d.Acquire("s2")
	require.NoError(t, err)

	// a released output can no longer drive the director
	assert.Nil(t, out.PlayProgress(context.Background(), KindRing))
	next.Release()
}

func TestDirectorOneProgressLayerAtATime(t *testing.T) {
	d, dev, _ := newTestDirector(t)
	ctx := context.Background()
	out, err := d.Acquire("s1")
	require.NoError(t, err)
	defer out.Release()

	ring := out.PlayProgress(ctx, KindRing)
	require.NotNil(t, ring)
	assert.True(t, ring.Options().Loop)
	assert.Equal(t, DefaultProgressVolume, ring.Options().Volume)

	hold := out.PlayProgress(ctx, KindHold)
	assert.Equal(t, StateStopped, ring.State())
	kind, ok := d.ActiveProgress()
	require.True(t, ok)
	assert.Equal(t, KindHold, kind)

	busy := out.PlayProgress(ctx, KindBusy)
	assert.False(t, busy.Options().Loop)
	assert.Equal(t, StateStopped, hold.State())

	assert.Eventually(t, func() bool {
		return dev.Active("ring") == 0 && dev.Active("hold") == 0 && dev.Active("busy") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDirectorAmbientLayersUnderProgress(t *testing.T) {
	d, dev, _ := newTestDirector(t)
	ctx := context.Background()
	out, err := d.Acquire("s1")
	require.NoError(t, err)

	out.PlayAmbient(ctx)
	out.PlayAmbient(ctx)
	out.PlayProgress(ctx, KindHold)

	assert.True(t, d.AmbientPlaying())
	assert.Eventually(t, func() bool { return dev.Active("ambient") == 1 && dev.Active("hold") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, dev.Started("ambient"))
	for _, p := range dev.Plays() {
		if p.Asset == "ambient" {
			assert.Equal(t, DefaultAmbientVolume, p.Volume)
		}
	}

	out.StopAmbient()
	assert.False(t, d.AmbientPlaying())

	out.StopAll()
	out.StopAll()
	_, ok := d.ActiveProgress()
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return dev.Active("ambient") == 0 && dev.Active("hold") == 0 }, time.Second, 5*time.Millisecond)
	out.Release()
}

func TestDirectorAbsorbsLayerFailures(t *testing.T) {
	d, dev, m := newTestDirector(t)
	dev.Fail("ring", errors.New("network down"))

	out, err := d.Acquire("s1")
	require.NoError(t, err)
	defer out.Release()

	ring := out.PlayProgress(context.Background(), KindRing)
	<-ring.Done()
	assert.Equal(t, StateErrored, ring.State())

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.PlaybackErrorsTotal.WithLabelValues("ring")) == 1
	}, time.Second, 5*time.Millisecond)

	// the director keeps working after a failed layer
	out.PlayAmbient(context.Background())
	assert.True(t, d.AmbientPlaying())
}

func TestDirectorRejectsAmbientAsProgress(t *testing.T) {
	d, _, _ := newTestDirector(t)
	out, err := d.Acquire("s1")
	require.NoError(t, err)
	defer out.Release()
	assert.Nil(t, out.PlayProgress(context.Background(), KindAmbient))
}

func TestDirectorDefaults(t *testing.T) {
	d := NewDirector(audiotest.NewDevice(), DirectorConfig{})
	assert.Equal(t, DefaultAssets(), d.cfg.Assets)
	assert.Len(t, DefaultAssets().All(), 4)
}
