package tension

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultMaxEventInterval = 45.0 // seconds between content events at calm
	defaultMinEventInterval = 15.0 // seconds between content events at peak tension
	defaultSourceDecayRate  = 0.05 // contribution units per second
	defaultSmoothTime       = 0.5  // seconds for current to chase target

	surgeDuration  = 6.0  // lifetime of a positive event, seconds
	reliefDuration = 10.0 // lifetime of a relief event, seconds

	intervalJitter = 0.2 // +-20% randomization of the firing interval

	historyWindow = 10  // samples in the rolling average
	peakThreshold = 0.2 // how far above the average a sample must be
	maxPeaks      = 3   // most recent peaks kept

	// Profile dominance scales the tension target by up to this factor.
	dominanceWeight = 0.5

	moderateAt = 0.45
	intenseAt  = 0.75
)

// Severity grades a scheduled content event by the tension it fires at.
type Severity string

const (
	SeveritySubtle   Severity = "subtle"
	SeverityModerate Severity = "moderate"
	SeverityIntense  Severity = "intense"
)

// ProfileReader is the slice of the psychological profile the director
// reads when computing its target multiplier.
type ProfileReader interface {
	Dominant() float64
}

// Event is one transient tension impulse with a shaped lifetime.
type Event struct {
	Source    string
	Amount    float64 // signed contribution at full curve strength
	StartTime time.Time
	Duration  float64 // seconds
	Curve     Curve

	elapsed float64
}

// Peak records a moment the tension spiked above its recent average.
type Peak struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Params tunes pacing. Zero values fall back to defaults.
type Params struct {
	MaxEventInterval float64
	MinEventInterval float64
	SourceDecayRate  float64
	SmoothTime       float64
}

func (p Params) withDefaults() Params {
	if p.MaxEventInterval <= 0 {
		p.MaxEventInterval = defaultMaxEventInterval
	}
	if p.MinEventInterval <= 0 {
		p.MinEventInterval = defaultMinEventInterval
	}
	if p.SourceDecayRate <= 0 {
		p.SourceDecayRate = defaultSourceDecayRate
	}
	if p.SmoothTime <= 0 {
		p.SmoothTime = defaultSmoothTime
	}
	return p
}

// Director paces the experience: it aggregates tension sources and
// transient events into a target level, chases it smoothly, schedules
// content events and records tension peaks.
type Director struct {
	current  float64
	target   float64
	velocity float64

	sources map[string]float64
	events  []Event

	history []float64
	peaks   []Peak
	inPeak  bool

	timeUntilFire float64

	profile ProfileReader
	params  Params

	// OnContentEvent fires when the scheduler decides the experience
	// needs new content. Failures inside the callback are contained.
	OnContentEvent func(Severity, float64)

	rng *rand.Rand
	now func() time.Time

	// Thread safety
	mutex sync.RWMutex
}

// NewDirector creates a tension director seeded for reproducible pacing.
func NewDirector(profile ProfileReader, seed int64, params Params) *Director {
	d := &Director{
		sources: make(map[string]float64),
		history: make([]float64, 0, historyWindow),
		profile: profile,
		params:  params.withDefaults(),
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
	}
	d.timeUntilFire = d.nextIntervalLocked()
	return d
}

// ModifyTension registers an impulse from the named source. Positive
// amounts spike fast and release slowly; negative amounts ease in and
// out. A zero amount is legal and contributes nothing.
func (d *Director) ModifyTension(amount float64, source string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if amount > 1 {
		amount = 1
	} else if amount < -1 {
		amount = -1
	}

	d.sources[source] = clamp01(d.sources[source] + amount)

	ev := Event{
		Source:    source,
		Amount:    amount,
		StartTime: d.now(),
		Duration:  surgeDuration,
		Curve:     CurveSpike,
	}
	if amount < 0 {
		ev.Duration = reliefDuration
		ev.Curve = CurveSoft
	}
	d.events = append(d.events, ev)
}

// Tick advances the director by deltaTime seconds. It must be called
// once per fixed time step. Downstream failures never escape it.
func (d *Director) Tick(deltaTime float64) {
	if deltaTime <= 0 {
		return
	}

	d.mutex.Lock()

	d.decaySourcesLocked(deltaTime)
	eventSum := d.advanceEventsLocked(deltaTime)
	d.retargetLocked(eventSum)

	d.current, d.velocity = smoothDamp(d.current, d.target, d.velocity, d.params.SmoothTime, deltaTime)
	d.current = clamp01(d.current)

	d.detectPeakLocked()

	fire := false
	var severity Severity
	var value float64
	d.timeUntilFire -= deltaTime
	if d.timeUntilFire <= 0 {
		fire = true
		severity = severityFor(d.current)
		value = d.current
		d.timeUntilFire = d.nextIntervalLocked()
	}

	d.mutex.Unlock()

	if fire {
		d.fireContentEvent(severity, value)
	}
}

// Current returns the smoothed tension level.
func (d *Director) Current() float64 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.current
}

// Target returns the level the director is currently chasing.
func (d *Director) Target() float64 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.target
}

// Peaks returns the most recent tension peaks, oldest first.
func (d *Director) Peaks() []Peak {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return append([]Peak(nil), d.peaks...)
}

// Sources returns a copy of the per-source running contributions.
func (d *Director) Sources() map[string]float64 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	sources := make(map[string]float64, len(d.sources))
	for name, v := range d.sources {
		sources[name] = v
	}
	return sources
}

// ActiveEvents returns how many shaped events are still live.
func (d *Director) ActiveEvents() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.events)
}

func (d *Director) decaySourcesLocked(deltaTime float64) {
	step := d.params.SourceDecayRate * deltaTime
	for name, v := range d.sources {
		v -= step
		if v <= 0 {
			delete(d.sources, name)
			continue
		}
		d.sources[name] = v
	}
}

// advanceEventsLocked ages active events, sums their shaped
// contributions and prunes the expired ones. Degenerate curve values
// drop the event rather than poisoning the target.
func (d *Director) advanceEventsLocked(deltaTime float64) float64 {
	sum := 0.0
	kept := d.events[:0]
	for i := range d.events {
		ev := d.events[i]
		ev.elapsed += deltaTime
		if ev.elapsed >= ev.Duration {
			continue
		}
		contribution := ev.Amount * ev.Curve.Value(ev.elapsed/ev.Duration)
		if math.IsNaN(contribution) || math.IsInf(contribution, 0) {
			log.Printf("[Tension] dropping event from %q: degenerate contribution", ev.Source)
			continue
		}
		sum += contribution
		kept = append(kept, ev)
	}
	d.events = kept
	return sum
}

func (d *Director) retargetLocked(eventSum float64) {
	raw := eventSum
	for _, v := range d.sources {
		raw += v
	}

	multiplier := 1.0
	if d.profile != nil {
		multiplier += dominanceWeight * clamp01(d.profile.Dominant())
	}
	d.target = clamp01(raw * multiplier)
}

// detectPeakLocked compares the current sample against the rolling
// average of the previous window. A sample can only open one peak; the
// latch clears once the level falls back toward the average.
func (d *Director) detectPeakLocked() {
	if len(d.history) > 0 {
		avg := 0.0
		for _, v := range d.history {
			avg += v
		}
		avg /= float64(len(d.history))

		if d.current-avg > peakThreshold {
			if !d.inPeak {
				d.inPeak = true
				d.peaks = append(d.peaks, Peak{Value: d.current, At: d.now()})
				if len(d.peaks) > maxPeaks {
					d.peaks = d.peaks[1:]
				}
			}
		} else {
			d.inPeak = false
		}
	}

	d.history = append(d.history, d.current)
	if len(d.history) > historyWindow {
		d.history = d.history[1:]
	}
}

// nextIntervalLocked draws the next firing delay: the calmer the
// experience, the longer the wait, with jitter so pacing never reads
// as mechanical.
func (d *Director) nextIntervalLocked() float64 {
	mean := lerp(d.params.MaxEventInterval, d.params.MinEventInterval, clamp01(d.current))
	jitter := 1 - intervalJitter + 2*intervalJitter*d.rng.Float64()
	return mean * jitter
}

func (d *Director) fireContentEvent(severity Severity, value float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Tension] content event callback panicked: %v", r)
		}
	}()
	if d.OnContentEvent != nil {
		d.OnContentEvent(severity, value)
	}
}

func severityFor(current float64) Severity {
	switch {
	case current >= intenseAt:
		return SeverityIntense
	case current >= moderateAt:
		return SeverityModerate
	default:
		return SeveritySubtle
	}
}
