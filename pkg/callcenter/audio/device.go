package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Device renders one asset at a time per call to Play. Play blocks until the
// asset finishes or ctx is cancelled; cancellation must stop output promptly.
type Device interface {
	Play(ctx context.Context, asset string, volume float64) error
}

// Sink receives raw agent speech (16-bit little-endian PCM).
type Sink interface {
	Write(p []byte) error
	Close() error
}

// FFPlayDevice plays assets through an ffplay subprocess.
type FFPlayDevice struct {
	Path     string
	LogLevel string
	Cache    *AssetCache
}

func NewFFPlayDevice(path string, cache *AssetCache) *FFPlayDevice {
	if strings.TrimSpace(path) == "" {
		path = "ffplay"
	}
	return &FFPlayDevice{Path: path, LogLevel: "error", Cache: cache}
}

func (d *FFPlayDevice) Play(ctx context.Context, asset string, volume float64) error {
	if d.Cache != nil {
		asset = d.Cache.Resolve(asset)
	}
	args := []string{
		"-hide_banner",
		"-loglevel", d.LogLevel,
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-volume", fmt.Sprintf("%d", int(clampVolume(volume)*100)),
		asset,
	}
	cmd := exec.CommandContext(ctx, d.Path, args...)
	cmd.Env = sdlEnv()
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay %s: %w", asset, err)
	}
	return nil
}

// sdlEnv prefers CoreAudio on macOS, where SDL may otherwise pick a dummy
// backend with no sound.
func sdlEnv() []string {
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		return append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	return nil
}

// SilentDevice pretends to play each asset for Duration. Used headless.
type SilentDevice struct {
	Duration time.Duration
}

func (d SilentDevice) Play(ctx context.Context, asset string, volume float64) error {
	dur := d.Duration
	if dur <= 0 {
		dur = 2 * time.Second
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FFPlaySink streams PCM to a long-running ffplay reading stdin.
type FFPlaySink struct {
	path       string
	sampleRate int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func NewFFPlaySink(path string, sampleRate int) *FFPlaySink {
	if strings.TrimSpace(path) == "" {
		path = "ffplay"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &FFPlaySink{path: path, sampleRate: sampleRate}
}

func (s *FFPlaySink) startLocked() error {
	if s.cmd != nil {
		return nil
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-i", "-",
	}
	cmd := exec.Command(s.path, args...)
	cmd.Env = sdlEnv()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return err
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

// Write starts ffplay on first use.
func (s *FFPlaySink) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return err
	}
	_, err := s.stdin.Write(p)
	return err
}

func (s *FFPlaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
	return nil
}
