package director

import (
	"fmt"
	"sort"
	"strings"

	"echo-manor/internal/psyche"
)

// defaultRoom stands in when the client has not reported a location yet.
const defaultRoom = "the house"

// analysisHeader instructs the model to answer in the strict verdict
// shape the profile parser accepts.
const analysisHeader = `You are observing a player moving through a psychological horror
experience. Based on the behavior record below, estimate the player's
psychological profile.

Respond with a single JSON object and nothing else, using exactly this shape:
{"fear": 0.0, "obsession": 0.0, "aggression": 0.0, "curiosity": 0.0, "observations": ["..."]}

Every trait value must be between 0 and 1. Include at most three short
observations about notable behavior patterns.`

// analysisPrompt renders the behavior record for a profile-analysis call.
// The rendering is deterministic so identical records hash to the same
// cache key.
func analysisPrompt(profile *psyche.Tracker) string {
	var b strings.Builder
	b.WriteString(analysisHeader)

	b.WriteString("\n\nRecent choices:\n")
	history := profile.History()
	if len(history) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, snap := range history {
		if snap.Context != "" {
			fmt.Fprintf(&b, "- %s %s\n", snap.Action, snap.Context)
		} else {
			fmt.Fprintf(&b, "- %s\n", snap.Action)
		}
	}

	freqs := profile.ChoiceFrequencies()
	if len(freqs) > 0 {
		choices := make([]string, 0, len(freqs))
		for choice := range freqs {
			choices = append(choices, choice)
		}
		sort.Strings(choices)

		b.WriteString("\nChoice frequencies:\n")
		for _, choice := range choices {
			fmt.Fprintf(&b, "- %s: %d\n", choice, freqs[choice])
		}
	}

	if obs := profile.ObsessionKeywords(); len(obs) > 0 {
		fmt.Fprintf(&b, "\nFixations: %s\n", strings.Join(obs, ", "))
	}

	return b.String()
}

// expandPrompt fills template placeholders with the current scene.
func expandPrompt(prompt, room, obsession string) string {
	r := strings.NewReplacer("{room}", room, "{obsession}", obsession)
	return r.Replace(prompt)
}

// firstObsession returns the player's most recent fixation, or the
// fallback when none has formed yet.
func firstObsession(keywords []string, fallback string) string {
	if len(keywords) > 0 {
		return keywords[len(keywords)-1]
	}
	return fallback
}
