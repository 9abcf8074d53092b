package audio

// Kind names a call audio layer.
type Kind string

const (
	KindRing    Kind = "ring"
	KindHold    Kind = "hold"
	KindBusy    Kind = "busy"
	KindAmbient Kind = "ambient"
)

// IsProgress reports whether k is a call-progress tone. Progress tones are
// mutually exclusive; ambient layers underneath them.
func (k Kind) IsProgress() bool {
	return k == KindRing || k == KindHold || k == KindBusy
}

// loops reports whether the kind repeats until stopped. Busy plays once.
func (k Kind) loops() bool {
	return k != KindBusy
}

const (
	DefaultProgressVolume = 0.7
	DefaultAmbientVolume  = 0.2
)

// Assets maps each layer kind to a playable location (URL or file path).
type Assets struct {
	Ring    string `json:"ring" yaml:"ring"`
	Hold    string `json:"hold" yaml:"hold"`
	Busy    string `json:"busy" yaml:"busy"`
	Ambient string `json:"ambient" yaml:"ambient"`
}

// DefaultAssets returns the hosted call-progress sounds.
func DefaultAssets() Assets {
	return Assets{
		Ring:    "https://botsrhere.online/deontic/callerpro/ring.mp3",
		Hold:    "https://botsrhere.online/deontic/callerpro/hold.mp3",
		Busy:    "https://botsrhere.online/deontic/callerpro/busy.mp3",
		Ambient: "https://botsrhere.online/deontic/callerpro/callcenter-noice.mp3",
	}
}

// For returns the asset for kind.
func (a Assets) For(kind Kind) string {
	switch kind {
	case KindRing:
		return a.Ring
	case KindHold:
		return a.Hold
	case KindBusy:
		return a.Busy
	case KindAmbient:
		return a.Ambient
	}
	return ""
}

// All lists every configured asset, ambient included.
func (a Assets) All() []string {
	out := make([]string, 0, 4)
	for _, s := range []string{a.Ring, a.Hold, a.Busy, a.Ambient} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
