package director

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"echo-manor/internal/generation"
	"echo-manor/internal/psyche"
	"echo-manor/internal/tension"
)

const (
	defaultEventBuffer = 32
	produceTimeout     = 90 * time.Second

	// Tension pressure contributed by player behavior
	violenceTension = 0.12
	cautionTension  = 0.05
	paranoiaTension = 0.08
	curiosityRelief = -0.04

	paranoiaThreshold   = 0.6
	triggerTensionScale = 0.3
)

// Action is one concrete player interaction reported by the host client.
type Action struct {
	ChoiceType string `json:"choice_type"`
	Target     string `json:"target,omitempty"`
	Room       string `json:"room,omitempty"`
	Theme      string `json:"theme,omitempty"`
}

// ContentEvent is a finished piece of content published to the session.
type ContentEvent struct {
	ID             string           `json:"id"`
	Severity       tension.Severity `json:"severity"`
	Tension        float64          `json:"tension"`
	Text           string           `json:"text"`
	ProfileSummary string           `json:"profile_summary"`
	Reused         bool             `json:"reused"`
	Fallback       bool             `json:"fallback,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// State is the aggregate session view served over the API.
type State struct {
	Traits               psyche.Traits      `json:"traits"`
	ParanoiaIndex        float64            `json:"paranoia_index"`
	RealityDistortion    float64            `json:"reality_distortion"`
	EmotionalInstability float64            `json:"emotional_instability"`
	Obsessions           []string           `json:"obsessions"`
	TriggerWeights       map[string]float64 `json:"trigger_weights"`
	Tension              float64            `json:"tension"`
	TensionTarget        float64            `json:"tension_target"`
	Peaks                []tension.Peak     `json:"peaks"`
	Summary              string             `json:"summary"`
	Generation           generation.Stats   `json:"generation"`
	DroppedEvents        int64              `json:"dropped_events"`
}

// Config tunes a director.
type Config struct {
	Seed        int64
	TemplateDir string
	EventBuffer int // buffered ContentEvents between director and consumers
	Tension     tension.Params
	Generation  generation.Config
	Logger      *log.Logger
}

// Director glues one play session together: the psychological profile,
// the tension pacing and the generation pipeline. The tension scheduler
// decides when content is due; the director turns that decision into a
// template, a generation call and a published ContentEvent.
type Director struct {
	profile      *psyche.Tracker
	tension      *tension.Director
	orchestrator *generation.Orchestrator
	templates    *TemplateLibrary

	events  chan ContentEvent
	dropped atomic.Int64

	rng    *rand.Rand
	logger *log.Logger

	lastRoom string

	wg sync.WaitGroup

	// Thread safety
	mutex sync.RWMutex
}

// New builds a director around the given backend and cache. The template
// library is loaded from cfg.TemplateDir, seeding defaults on first run.
func New(backend generation.Backend, cache generation.Cache, cfg Config) (*Director, error) {
	templates, err := LoadTemplateLibrary(cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("template library: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	profile := psyche.NewTracker()

	d := &Director{
		profile:   profile,
		templates: templates,
		events:    make(chan ContentEvent, buffer),
		rng:       rand.New(rand.NewSource(cfg.Seed + 1)),
		logger:    logger,
		lastRoom:  defaultRoom,
	}

	d.orchestrator = generation.NewOrchestrator(backend, cache, profile, cfg.Generation)
	d.tension = tension.NewDirector(profile, cfg.Seed, cfg.Tension)
	d.tension.OnContentEvent = d.scheduleContent

	return d, nil
}

// Profile exposes the session's psychological tracker.
func (d *Director) Profile() *psyche.Tracker {
	return d.profile
}

// Tension exposes the session's tension director.
func (d *Director) Tension() *tension.Director {
	return d.tension
}

// Orchestrator exposes the session's generation pipeline.
func (d *Director) Orchestrator() *generation.Orchestrator {
	return d.orchestrator
}

// Events is the stream of published content events. The channel is
// bounded; when consumers fall behind, the oldest events are dropped.
func (d *Director) Events() <-chan ContentEvent {
	return d.events
}

// Dropped reports how many content events were discarded because no
// consumer kept up.
func (d *Director) Dropped() int64 {
	return d.dropped.Load()
}

// OnPlayerAction feeds one player interaction through the profile and
// converts what it reveals into tension pressure.
func (d *Director) OnPlayerAction(a Action) {
	d.profile.RecordChoice(a.ChoiceType, a.Target)

	if a.Room != "" {
		d.mutex.Lock()
		d.lastRoom = a.Room
		d.mutex.Unlock()
	}

	class := psyche.Classify(a.ChoiceType + " " + a.Target)

	if a.Theme != "" {
		d.profile.RecordTrigger(a.Theme, triggerIntensity(class))
	}

	switch {
	case class.Violence:
		d.tension.ModifyTension(violenceTension, "player_behavior")
	case class.Caution:
		d.tension.ModifyTension(cautionTension, "player_behavior")
	}

	if d.profile.ParanoiaIndex() > paranoiaThreshold {
		d.tension.ModifyTension(paranoiaTension, "player_paranoia")
	}

	tr := d.profile.Traits()
	if class.Approach && tr.Curiosity > tr.Fear && tr.Curiosity > tr.Obsession && tr.Curiosity > tr.Aggression {
		d.tension.ModifyTension(curiosityRelief, "player_behavior")
	}
}

// OnTrigger records an explicit environmental trigger exposure and lets
// part of its intensity bleed into the tension level.
func (d *Director) OnTrigger(name string, intensity float64) {
	d.profile.RecordTrigger(name, intensity)
	d.tension.ModifyTension(intensity*triggerTensionScale, "trigger:"+name)
}

// Tick advances the whole session by deltaTime seconds.
func (d *Director) Tick(deltaTime float64) {
	d.profile.Decay(deltaTime)
	d.tension.Tick(deltaTime)
}

// RequestContent asks for one content event of the given severity right
// away, outside the scheduler's cadence. Hosts use it for scripted beats.
func (d *Director) RequestContent(severity tension.Severity) {
	d.scheduleContent(severity, d.tension.Current())
}

// AnalyzeProfile asks the backend to read the recent behavior record and
// blend its verdict into the profile. A malformed verdict is rejected
// and leaves the profile untouched.
func (d *Director) AnalyzeProfile(ctx context.Context) error {
	res, err := d.orchestrator.Generate(ctx, generation.Request{
		Prompt:      analysisPrompt(d.profile),
		ContextType: generation.ContextProfileAnalysis,
	})
	if err != nil {
		return fmt.Errorf("analysis generation: %w", err)
	}

	return d.profile.ApplyAnalysis(res.Text)
}

// State assembles the aggregate session view.
func (d *Director) State() State {
	return State{
		Traits:               d.profile.Traits(),
		ParanoiaIndex:        d.profile.ParanoiaIndex(),
		RealityDistortion:    d.profile.RealityDistortion(),
		EmotionalInstability: d.profile.EmotionalInstability(),
		Obsessions:           d.profile.ObsessionKeywords(),
		TriggerWeights:       d.profile.TriggerWeights(),
		Tension:              d.tension.Current(),
		TensionTarget:        d.tension.Target(),
		Peaks:                d.tension.Peaks(),
		Summary:              d.profile.Summary(),
		Generation:           d.orchestrator.Stats(),
		DroppedEvents:        d.dropped.Load(),
	}
}

// Close stops content production and releases the orchestrator. Pending
// producers resolve to fallback lines before Close returns.
func (d *Director) Close() {
	d.orchestrator.Close()
	d.wg.Wait()
}

// scheduleContent is the tension scheduler callback. It runs on the tick
// goroutine, so the generation call is pushed to a producer goroutine
// and the tick never waits on the backend.
func (d *Director) scheduleContent(severity tension.Severity, level float64) {
	d.mutex.Lock()
	tpl, ok := d.templates.Pick(severity, d.rng)
	room := d.lastRoom
	d.mutex.Unlock()

	if !ok {
		d.logger.Printf("[Director] no template for severity %s", severity)
		return
	}

	obsession := firstObsession(d.profile.ObsessionKeywords(), room)

	d.wg.Add(1)
	go d.produce(tpl, severity, level, room, obsession)
}

func (d *Director) produce(tpl EventTemplate, severity tension.Severity, level float64, room, obsession string) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), produceTimeout)
	defer cancel()

	req := generation.Request{
		Prompt:           expandPrompt(tpl.Prompt, room, obsession),
		ContextType:      generation.ContextType(tpl.ContextType),
		RequiredElements: tpl.RequiredElements,
	}

	ev := ContentEvent{
		ID:             uuid.NewString(),
		Severity:       severity,
		Tension:        level,
		ProfileSummary: d.profile.Summary(),
		CreatedAt:      time.Now(),
	}

	res, err := d.orchestrator.Generate(ctx, req)
	if err != nil {
		d.logger.Printf("[Director] generation failed for %s (%s): %v", tpl.ID, severity, err)
		ev.Text = tpl.Fallback
		ev.Fallback = true
	} else {
		ev.Text = res.Text
		ev.Reused = res.FromCache
	}

	d.publish(ev)
}

// publish hands the event to the session without ever blocking the
// producer; when the buffer is full the oldest event is dropped.
func (d *Director) publish(ev ContentEvent) {
	for {
		select {
		case d.events <- ev:
			return
		default:
		}

		select {
		case <-d.events:
			d.dropped.Inc()
		default:
		}
	}
}

// triggerIntensity derives a trigger exposure intensity from the lexical
// class of the choice that carried it.
func triggerIntensity(class psyche.ChoiceClass) float64 {
	switch {
	case class.Violence:
		return 0.7
	case class.Distortion:
		return 0.6
	case class.Caution:
		return 0.4
	default:
		return 0.3
	}
}
