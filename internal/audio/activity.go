package audio

// ActivityConfig tunes the energy-based caller activity detector
type ActivityConfig struct {
	EnergyThreshold float64 // RMS level above which a frame counts as speech
	SilenceFrames   int     // consecutive quiet frames that end a speech segment
}

// DefaultActivityConfig suits 20ms carrier frames
func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
	}
}

// ActivityDetector tracks speech segments in inbound carrier audio.
// It is not safe for concurrent use; each call session owns one.
type ActivityDetector struct {
	cfg      ActivityConfig
	quiet    int
	speaking bool
	segments int
	lastRMS  float64
}

// NewActivityDetector creates a detector, filling zero fields from the defaults
func NewActivityDetector(cfg ActivityConfig) *ActivityDetector {
	def := DefaultActivityConfig()
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = def.EnergyThreshold
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = def.SilenceFrames
	}
	return &ActivityDetector{cfg: cfg}
}

// ActivityChange reports segment edges observed on a frame
type ActivityChange int

const (
	ActivityNone ActivityChange = iota
	ActivityStarted
	ActivityEnded
)

// ProcessMulaw feeds one μ-law frame and reports whether a speech segment started or ended
func (d *ActivityDetector) ProcessMulaw(frame []byte) ActivityChange {
	rms := MulawRMS(frame)
	d.lastRMS = rms

	if rms > d.cfg.EnergyThreshold {
		d.quiet = 0
		if !d.speaking {
			d.speaking = true
			d.segments++
			return ActivityStarted
		}
		return ActivityNone
	}

	d.quiet++
	if d.speaking && d.quiet >= d.cfg.SilenceFrames {
		d.speaking = false
		d.quiet = 0
		return ActivityEnded
	}
	return ActivityNone
}

// Segments returns the number of speech segments seen so far
func (d *ActivityDetector) Segments() int { return d.segments }

// LastLevel returns the RMS of the most recent frame
func (d *ActivityDetector) LastLevel() float64 { return d.lastRMS }
