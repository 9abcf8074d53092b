package audio

import (
	"context"
	"sync"

	apperrors "github.com/eburon/callerpro/pkg/callcenter/errors"
	"github.com/eburon/callerpro/pkg/callcenter/metrics"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
)

// DirectorConfig configures a Director.
type DirectorConfig struct {
	Assets         Assets
	ProgressVolume float64
	AmbientVolume  float64
	Metrics        *metrics.Metrics
}

// Director owns the physical call audio output. One session at a time holds
// it through an Output; at most one progress tone plays at any instant and
// the ambient layer plays underneath it.
type Director struct {
	device  Device
	cfg     DirectorConfig
	metrics *metrics.Metrics

	mu       sync.Mutex
	owner    *Output
	progress *Layer
	kind     Kind
	ambient  *Layer
}

func NewDirector(device Device, cfg DirectorConfig) *Director {
	if cfg.Assets == (Assets{}) {
		cfg.Assets = DefaultAssets()
	}
	if cfg.ProgressVolume <= 0 {
		cfg.ProgressVolume = DefaultProgressVolume
	}
	if cfg.AmbientVolume <= 0 {
		cfg.AmbientVolume = DefaultAmbientVolume
	}
	return &Director{device: device, cfg: cfg, metrics: cfg.Metrics}
}

// Output is one session's exclusive hold on the director. Methods on a
// released Output do nothing.
type Output struct {
	d     *Director
	owner string
}

// Acquire grants the output to owner. It fails with AUDIO_OUTPUT_BUSY while
// another owner holds it.
func (d *Director) Acquire(owner string) (*Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.owner != nil {
		return nil, apperrors.Newf(apperrors.ErrCodeAudioBusy,
			"audio output is held by session %s", d.owner.owner)
	}
	d.owner = &Output{d: d, owner: owner}
	return d.owner, nil
}

// Owner returns the id of the current holder, or "".
func (d *Director) Owner() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner == nil {
		return ""
	}
	return d.owner.owner
}

// ActiveProgress returns the kind of the progress tone currently playing.
func (d *Director) ActiveProgress() (Kind, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.progress == nil || d.progress.State() != StatePlaying {
		return "", false
	}
	return d.kind, true
}

// AmbientPlaying reports whether the ambient layer is playing.
func (d *Director) AmbientPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ambient != nil && d.ambient.State() == StatePlaying
}

// PlayProgress stops the current progress tone, if any, then starts kind.
// The returned layer completes when a non-looping tone ends.
func (o *Output) PlayProgress(ctx context.Context, kind Kind) *Layer {
	d := o.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != o || !kind.IsProgress() {
		return nil
	}

	d.progress.Stop()
	layer := d.start(ctx, kind, Options{Loop: kind.loops(), Volume: d.cfg.ProgressVolume})
	d.progress = layer
	d.kind = kind
	return layer
}

// StopProgress stops the current progress tone.
func (o *Output) StopProgress() {
	d := o.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != o {
		return
	}
	d.progress.Stop()
	d.progress = nil
	d.kind = ""
}

// PlayAmbient starts the looping background layer. A running ambient layer
// is left alone.
func (o *Output) PlayAmbient(ctx context.Context) {
	d := o.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != o {
		return
	}
	if d.ambient != nil && d.ambient.State() == StatePlaying {
		return
	}
	d.ambient = d.start(ctx, KindAmbient, Options{Loop: true, Volume: d.cfg.AmbientVolume})
}

func (o *Output) StopAmbient() {
	d := o.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != o {
		return
	}
	d.ambient.Stop()
	d.ambient = nil
}

// StopAll stops every owned layer.
func (o *Output) StopAll() {
	d := o.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != o {
		return
	}
	d.stopAllLocked()
}

// Release stops every layer and frees the output for the next session.
func (o *Output) Release() {
	d := o.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != o {
		return
	}
	d.stopAllLocked()
	d.owner = nil
}

func (d *Director) stopAllLocked() {
	d.progress.Stop()
	d.ambient.Stop()
	d.progress = nil
	d.kind = ""
	d.ambient = nil
}

// start must be called with d.mu held. Layers outlive the caller's request
// context; only Stop ends them.
func (d *Director) start(ctx context.Context, kind Kind, opts Options) *Layer {
	log := ctrllog.FromContext(ctx).WithName("audio-director")
	asset := d.cfg.Assets.For(kind)

	layer := Start(context.WithoutCancel(ctx), d.device, asset, opts)
	log.V(1).Info("Started audio layer", "kind", kind, "asset", asset, "loop", opts.Loop, "volume", opts.Volume)

	go func() {
		<-layer.Done()
		if err := layer.Err(); err != nil {
			log.Error(err, "Audio layer failed, continuing without it", "kind", kind)
			d.metrics.RecordPlaybackError(string(kind))
		}
	}()
	return layer
}
