package psyche

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
)

// Analysis rejection errors.
var (
	ErrMalformedAnalysis = errors.New("malformed analysis payload")
	ErrAnalysisRange     = errors.New("analysis trait out of range")
)

// analysisPayload is the response contract for profile analysis. The
// backend is instructed to emit exactly one JSON object of this shape.
// Pointer fields distinguish a missing trait from a zero one.
type analysisPayload struct {
	Fear         *float64 `json:"fear"`
	Obsession    *float64 `json:"obsession"`
	Aggression   *float64 `json:"aggression"`
	Curiosity    *float64 `json:"curiosity"`
	Observations []string `json:"observations"`
}

// ApplyAnalysis parses a profile analysis returned by the generative
// backend and blends the analyzed trait values into the profile. A
// malformed or out-of-range payload is rejected whole; the profile is
// never partially updated.
func (t *Tracker) ApplyAnalysis(raw string) error {
	payload, err := parseAnalysis(raw)
	if err != nil {
		log.Printf("[Psyche] rejecting analysis: %v", err)
		return err
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.traits.Fear = clamp01(lerp(t.traits.Fear, *payload.Fear, blendFactor))
	t.traits.Obsession = clamp01(lerp(t.traits.Obsession, *payload.Obsession, blendFactor))
	t.traits.Aggression = clamp01(lerp(t.traits.Aggression, *payload.Aggression, blendFactor))
	t.traits.Curiosity = clamp01(lerp(t.traits.Curiosity, *payload.Curiosity, blendFactor))

	if len(payload.Observations) > 0 {
		t.observations = append(t.observations, payload.Observations...)
		if len(t.observations) > maxObservations {
			t.observations = t.observations[len(t.observations)-maxObservations:]
		}
	}
	return nil
}

// Summary renders a one-line profile description for prompt context.
func (t *Tracker) Summary() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	line := fmt.Sprintf(
		"fear %.2f, obsession %.2f, aggression %.2f, curiosity %.2f; paranoia %.2f, reality distortion %.2f, instability %.2f",
		t.traits.Fear, t.traits.Obsession, t.traits.Aggression, t.traits.Curiosity,
		t.paranoiaIndex, t.realityDistortion, t.emotionalInstability)
	if len(t.obsessionKeywords) > 0 {
		line += "; fixated on " + strings.Join(t.obsessionKeywords, ", ")
	}
	return line
}

func parseAnalysis(raw string) (*analysisPayload, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedAnalysis)
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}

	fields := []struct {
		name  string
		value *float64
	}{
		{"fear", payload.Fear},
		{"obsession", payload.Obsession},
		{"aggression", payload.Aggression},
		{"curiosity", payload.Curiosity},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformedAnalysis, f.name)
		}
		if math.IsNaN(*f.value) || *f.value < 0 || *f.value > 1 {
			return nil, fmt.Errorf("%w: %s=%v", ErrAnalysisRange, f.name, *f.value)
		}
	}
	return &payload, nil
}

// stripCodeFence unwraps a markdown code fence some models insist on.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
