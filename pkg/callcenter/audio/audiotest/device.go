// Package audiotest provides an in-memory audio device for tests.
package audiotest

import (
	"context"
	"sync"
	"time"
)

// Play is one recorded call to Device.Play.
type Play struct {
	Asset  string
	Volume float64
}

// Device records every Play. By default an asset plays until its context is
// cancelled; Finish and Fail change that per asset.
type Device struct {
	mu      sync.Mutex
	plays   []Play
	active  map[string]int
	finite  map[string]time.Duration
	failing map[string]error
}

func NewDevice() *Device {
	return &Device{
		active:  make(map[string]int),
		finite:  make(map[string]time.Duration),
		failing: make(map[string]error),
	}
}

// Finish makes asset complete on its own after d.
func (d *Device) Finish(asset string, after time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finite[asset] = after
}

// Fail makes every play of asset fail with err.
func (d *Device) Fail(asset string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[asset] = err
}

func (d *Device) Play(ctx context.Context, asset string, volume float64) error {
	d.mu.Lock()
	d.plays = append(d.plays, Play{Asset: asset, Volume: volume})
	if err, ok := d.failing[asset]; ok {
		d.mu.Unlock()
		return err
	}
	after, finite := d.finite[asset]
	d.active[asset]++
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.active[asset]--
		d.mu.Unlock()
	}()

	if !finite {
		<-ctx.Done()
		return ctx.Err()
	}
	timer := time.NewTimer(after)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Plays returns every recorded play in order.
func (d *Device) Plays() []Play {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Play(nil), d.plays...)
}

// Started counts plays of asset.
func (d *Device) Started(asset string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, p := range d.plays {
		if p.Asset == asset {
			n++
		}
	}
	return n
}

// Active counts plays of asset that have not returned.
func (d *Device) Active(asset string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[asset]
}
