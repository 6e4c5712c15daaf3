package psyche

import (
	"math"
	"sync"
	"time"
)

const (
	// blendFactor is the exponential smoothing weight applied to every
	// gradual trait and index adjustment.
	blendFactor = 0.3

	// traitStep is how far above the current value a matching choice
	// pulls a trait before blending.
	traitStep = 0.1

	// historySize caps the behavior snapshot ring buffer.
	historySize = 20

	// obsessionRepeatThreshold is how many times the same target must be
	// chosen before it becomes an active obsession keyword.
	obsessionRepeatThreshold = 3

	// indexDecayRate pulls derived indices toward zero, units per second.
	indexDecayRate = 0.02

	// weightDecayRate pulls trigger weights toward their floor, units per second.
	weightDecayRate = 0.01

	// weightFloor is the lowest value decay will pull a trigger weight to.
	weightFloor = 0.1

	// intenseTrigger marks trigger intensities strong enough to bend
	// the player's sense of what is real.
	intenseTrigger = 0.7

	// maxObservations caps retained analysis observations.
	maxObservations = 5
)

// Traits holds the primary psychological traits driven by player actions.
type Traits struct {
	Fear       float64 `json:"fear"`       // 0-1: dread response
	Obsession  float64 `json:"obsession"`  // 0-1: fixation on targets and rituals
	Aggression float64 `json:"aggression"` // 0-1: destructive impulse
	Curiosity  float64 `json:"curiosity"`  // 0-1: pull toward the unknown
}

// BehaviorSnapshot is an immutable record of one recorded choice and the
// trait values at the moment it was made.
type BehaviorSnapshot struct {
	Action    string    `json:"action"`
	Context   string    `json:"context"`
	Traits    Traits    `json:"traits"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the persistence surface handed to the save subsystem.
// It carries exactly what an external save needs to rebuild a session
// profile; history and derived indices are rebuilt through play.
type Snapshot struct {
	Traits            Traits         `json:"traits"`
	ChoiceFrequencies map[string]int `json:"choice_frequencies"`
	ObsessionKeywords []string       `json:"obsession_keywords"`
}

// Tracker maintains the psychological profile of a single player session.
type Tracker struct {
	// Primary traits
	traits Traits

	// Derived indices (0-1, never set directly)
	paranoiaIndex        float64
	realityDistortion    float64
	emotionalInstability float64

	// Trigger sensitivity, normalized so weights sum to 1
	triggerWeights map[string]float64

	// Behavior accounting
	choiceFrequencies map[string]int
	targetCounts      map[string]int
	obsessionKeywords []string
	behaviorHistory   []BehaviorSnapshot

	// Latest analysis observations
	observations []string

	now func() time.Time

	// Thread safety
	mutex sync.RWMutex
}

// NewTracker creates a tracker with a neutral starting profile.
func NewTracker() *Tracker {
	return &Tracker{
		triggerWeights:    make(map[string]float64),
		choiceFrequencies: make(map[string]int),
		targetCounts:      make(map[string]int),
		behaviorHistory:   make([]BehaviorSnapshot, 0, historySize),
		now:               time.Now,
	}
}

// RecordChoice registers a player choice. It updates frequency counters,
// nudges traits by the choice's lexical class, appends a behavior
// snapshot and recomputes the derived indices.
func (t *Tracker) RecordChoice(choiceType, target string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.choiceFrequencies[choiceType]++

	if target != "" {
		t.targetCounts[target]++
		if t.targetCounts[target] == obsessionRepeatThreshold {
			t.addObsessionLocked(target)
		}
	}

	class := Classify(choiceType + " " + target)

	if class.Caution {
		t.traits.Fear = blendUp(t.traits.Fear)
		t.paranoiaIndex = blendUp(t.paranoiaIndex)
	}
	if class.Approach {
		t.traits.Curiosity = blendUp(t.traits.Curiosity)
	}
	if class.Violence {
		t.traits.Aggression = blendUp(t.traits.Aggression)
	}
	if class.Distortion {
		t.traits.Obsession = blendUp(t.traits.Obsession)
		t.realityDistortion = blendUp(t.realityDistortion)
	}
	if target != "" && t.targetCounts[target] >= obsessionRepeatThreshold {
		t.traits.Obsession = blendUp(t.traits.Obsession)
	}

	t.appendSnapshotLocked(choiceType, target)
	t.recomputeInstabilityLocked()
}

// RecordTrigger blends the named trigger's weight toward the observed
// intensity, then renormalizes all weights to sum to 1.
func (t *Tracker) RecordTrigger(trigger string, intensity float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	intensity = clamp01(intensity)
	t.triggerWeights[trigger] = lerp(t.triggerWeights[trigger], intensity, blendFactor)
	t.renormalizeLocked()

	if intensity > intenseTrigger {
		t.realityDistortion = blendUp(t.realityDistortion)
	}
}

// Decay pulls derived indices toward zero and trigger weights toward
// their floor. Called once per fixed time step with the elapsed seconds.
func (t *Tracker) Decay(deltaTime float64) {
	if deltaTime <= 0 {
		return
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	step := indexDecayRate * deltaTime
	t.paranoiaIndex = math.Max(0, t.paranoiaIndex-step)
	t.realityDistortion = math.Max(0, t.realityDistortion-step)
	t.emotionalInstability = math.Max(0, t.emotionalInstability-step)

	if len(t.triggerWeights) == 0 {
		return
	}
	wStep := weightDecayRate * deltaTime
	for name, w := range t.triggerWeights {
		if w > weightFloor {
			t.triggerWeights[name] = math.Max(weightFloor, w-wStep)
		}
	}
	t.renormalizeLocked()
}

// Reset returns the profile to its initial state. There is no other way
// to lower the choice frequency counters.
func (t *Tracker) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.traits = Traits{}
	t.paranoiaIndex = 0
	t.realityDistortion = 0
	t.emotionalInstability = 0
	t.triggerWeights = make(map[string]float64)
	t.choiceFrequencies = make(map[string]int)
	t.targetCounts = make(map[string]int)
	t.obsessionKeywords = nil
	t.behaviorHistory = t.behaviorHistory[:0]
	t.observations = nil
}

// Traits returns the current primary trait values.
func (t *Tracker) Traits() Traits {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.traits
}

// SetTraits accepts externally supplied trait values, clamped on write.
// History is not re-derived.
func (t *Tracker) SetTraits(tr Traits) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.traits = clampTraits(tr)
}

// ParanoiaIndex returns the current paranoia index.
func (t *Tracker) ParanoiaIndex() float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.paranoiaIndex
}

// RealityDistortion returns the current reality distortion index.
func (t *Tracker) RealityDistortion() float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.realityDistortion
}

// EmotionalInstability returns the current emotional instability index.
func (t *Tracker) EmotionalInstability() float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.emotionalInstability
}

// Dominant returns the strongest of fear, obsession and aggression.
// The tension director uses it as its profile multiplier input.
func (t *Tracker) Dominant() float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return math.Max(t.traits.Fear, math.Max(t.traits.Obsession, t.traits.Aggression))
}

// TriggerWeights returns a copy of the normalized trigger weight map.
func (t *Tracker) TriggerWeights() map[string]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	weights := make(map[string]float64, len(t.triggerWeights))
	for name, w := range t.triggerWeights {
		weights[name] = w
	}
	return weights
}

// ChoiceFrequencies returns a copy of the choice frequency counters.
func (t *Tracker) ChoiceFrequencies() map[string]int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	freqs := make(map[string]int, len(t.choiceFrequencies))
	for name, n := range t.choiceFrequencies {
		freqs[name] = n
	}
	return freqs
}

// SetChoiceFrequencies replaces the choice frequency table.
func (t *Tracker) SetChoiceFrequencies(freqs map[string]int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.choiceFrequencies = make(map[string]int, len(freqs))
	for name, n := range freqs {
		t.choiceFrequencies[name] = n
	}
}

// ObsessionKeywords returns the targets the player keeps returning to.
func (t *Tracker) ObsessionKeywords() []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return append([]string(nil), t.obsessionKeywords...)
}

// SetObsessionKeywords replaces the active obsession keyword list.
func (t *Tracker) SetObsessionKeywords(keywords []string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.obsessionKeywords = append([]string(nil), keywords...)
}

// History returns a copy of the behavior snapshot ring, oldest first.
func (t *Tracker) History() []BehaviorSnapshot {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return append([]BehaviorSnapshot(nil), t.behaviorHistory...)
}

// Observations returns the retained analysis observations.
func (t *Tracker) Observations() []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return append([]string(nil), t.observations...)
}

// Snapshot captures the persistence surface for the save subsystem.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Traits:            t.Traits(),
		ChoiceFrequencies: t.ChoiceFrequencies(),
		ObsessionKeywords: t.ObsessionKeywords(),
	}
}

// Restore accepts a previously captured snapshot verbatim.
func (t *Tracker) Restore(s Snapshot) {
	t.SetTraits(s.Traits)
	t.SetChoiceFrequencies(s.ChoiceFrequencies)
	t.SetObsessionKeywords(s.ObsessionKeywords)
}

// appendSnapshotLocked pushes a snapshot into the ring, evicting the
// oldest entry once the ring is full.
func (t *Tracker) appendSnapshotLocked(action, context string) {
	snap := BehaviorSnapshot{
		Action:    action,
		Context:   context,
		Traits:    t.traits,
		Timestamp: t.now(),
	}
	t.behaviorHistory = append(t.behaviorHistory, snap)
	if len(t.behaviorHistory) > historySize {
		t.behaviorHistory = t.behaviorHistory[1:]
	}
}

// recomputeInstabilityLocked blends the mean absolute trait difference
// between the two latest snapshots into the running instability value.
func (t *Tracker) recomputeInstabilityLocked() {
	n := len(t.behaviorHistory)
	if n < 2 {
		return
	}
	last := t.behaviorHistory[n-1].Traits
	prev := t.behaviorHistory[n-2].Traits

	diff := (math.Abs(last.Fear-prev.Fear) +
		math.Abs(last.Obsession-prev.Obsession) +
		math.Abs(last.Aggression-prev.Aggression)) / 3.0

	t.emotionalInstability = clamp01(lerp(t.emotionalInstability, diff, blendFactor))
}

// renormalizeLocked rescales trigger weights to sum to 1. A zero or
// degenerate sum resets the map to uniform weights instead of dividing.
func (t *Tracker) renormalizeLocked() {
	n := len(t.triggerWeights)
	if n == 0 {
		return
	}

	sum := 0.0
	for _, w := range t.triggerWeights {
		sum += w
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		uniform := 1.0 / float64(n)
		for name := range t.triggerWeights {
			t.triggerWeights[name] = uniform
		}
		return
	}
	for name, w := range t.triggerWeights {
		t.triggerWeights[name] = w / sum
	}
}

func (t *Tracker) addObsessionLocked(target string) {
	for _, existing := range t.obsessionKeywords {
		if existing == target {
			return
		}
	}
	t.obsessionKeywords = append(t.obsessionKeywords, target)
}

// blendUp lerps a value toward itself plus one trait step, clamped.
func blendUp(v float64) float64 {
	return clamp01(lerp(v, v+traitStep, blendFactor))
}

func clampTraits(tr Traits) Traits {
	return Traits{
		Fear:       clamp01(tr.Fear),
		Obsession:  clamp01(tr.Obsession),
		Aggression: clamp01(tr.Aggression),
		Curiosity:  clamp01(tr.Curiosity),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
