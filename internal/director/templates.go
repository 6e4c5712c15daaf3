package director

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"echo-manor/internal/tension"
)

// EventTemplate describes one reusable content event: the prompt skeleton
// handed to the orchestrator and the canned line used when generation fails.
type EventTemplate struct {
	ID               string   `yaml:"id"`
	Severity         string   `yaml:"severity"`
	ContextType      string   `yaml:"context_type"`
	Prompt           string   `yaml:"prompt"`
	RequiredElements []string `yaml:"required_elements,omitempty"`
	Fallback         string   `yaml:"fallback"`
}

// templateRestTime is how long a template must rest before it scores as
// high as one that has never fired.
const templateRestTime = 120.0

// TemplateLibrary holds event templates grouped by severity.
type TemplateLibrary struct {
	templates map[tension.Severity][]EventTemplate
	lastUsed  map[string]time.Time

	// Thread safety
	mutex sync.Mutex
}

// LoadTemplateLibrary reads every .yaml template under dir. When the
// directory holds no usable templates the default set is written first,
// then loaded.
func LoadTemplateLibrary(dir string) (*TemplateLibrary, error) {
	lib := &TemplateLibrary{
		templates: make(map[tension.Severity][]EventTemplate),
		lastUsed:  make(map[string]time.Time),
	}

	err := lib.load(dir)
	if err != nil {
		if err := writeDefaultTemplates(dir); err != nil {
			return nil, fmt.Errorf("failed to create default event templates: %w", err)
		}
		if err := lib.load(dir); err != nil {
			return nil, fmt.Errorf("failed to load event templates: %w", err)
		}
	}

	return lib, nil
}

func (l *TemplateLibrary) load(dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	count := 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			continue
		}

		var tpl EventTemplate
		if err := yaml.Unmarshal(data, &tpl); err != nil {
			continue
		}

		sev := tension.Severity(tpl.Severity)
		switch sev {
		case tension.SeveritySubtle, tension.SeverityModerate, tension.SeverityIntense:
		default:
			continue
		}

		l.templates[sev] = append(l.templates[sev], tpl)
		count++
	}

	if count == 0 {
		return fmt.Errorf("no event templates found in %s", dir)
	}

	return nil
}

// Len returns the number of loaded templates across all severities.
func (l *TemplateLibrary) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	n := 0
	for _, ts := range l.templates {
		n += len(ts)
	}
	return n
}

// Pick selects a template for the severity, preferring ones that have
// rested longest and adding a little randomness so selection never
// settles into a fixed cycle.
func (l *TemplateLibrary) Pick(severity tension.Severity, rng *rand.Rand) (EventTemplate, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	candidates := l.templates[severity]
	if len(candidates) == 0 {
		return EventTemplate{}, false
	}

	now := time.Now()
	best := candidates[0]
	bestScore := -1.0

	for _, tpl := range candidates {
		score := 2.0 // never fired
		if used, ok := l.lastUsed[tpl.ID]; ok {
			rested := now.Sub(used).Seconds()
			score = math.Min(2.0, rested/templateRestTime)
		}

		// Add some randomness
		score *= 0.9 + rng.Float64()*0.2

		if score > bestScore {
			bestScore = score
			best = tpl
		}
	}

	l.lastUsed[best.ID] = now
	return best, true
}

// writeDefaultTemplates seeds the content directory with a working set
// covering every severity.
func writeDefaultTemplates(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	templates := []EventTemplate{
		// Subtle: background wrongness, never addressed to the player directly
		{
			ID:          "ambient_sound",
			Severity:    "subtle",
			ContextType: "ambient_detail",
			Prompt: "Write one short sentence describing a faint ambient sound in {room}. " +
				"The sound should feel natural at first and wrong on second thought. " +
				"Present tense, second person.",
			Fallback: "Somewhere behind the wall, something settles with a soft wooden creak.",
		},
		{
			ID:          "object_detail",
			Severity:    "subtle",
			ContextType: "ambient_detail",
			Prompt: "Describe in one or two sentences a small detail about an ordinary object " +
				"in {room} that is slightly off. Do not explain it.",
			Fallback: "The photograph on the shelf is facing the wall. You do not remember turning it.",
		},

		// Moderate: the space itself misbehaves
		{
			ID:          "room_shift",
			Severity:    "moderate",
			ContextType: "room_description",
			Prompt: "Describe {room} as the player re-enters it. Keep the layout recognizable " +
				"but alter one spatial property so the room feels redrawn. " +
				"Two or three sentences, second person, present tense.",
			Fallback: "The room is the way you left it, except the door sits half a step further from the window.",
		},
		{
			ID:          "whisper",
			Severity:    "moderate",
			ContextType: "whisper",
			Prompt: "Write a single whispered line addressed to someone who keeps returning " +
				"to {obsession}. At most twelve words. No quotation marks.",
			Fallback: "...you always come back...",
		},

		// Intense: the presence shows itself
		{
			ID:          "manifestation",
			Severity:    "intense",
			ContextType: "entity_behavior",
			Prompt: "Describe a presence revealing itself in {room}. It must be seen only as " +
				"a shadow, and the word shadow must appear. " +
				"Three sentences, second person, present tense.",
			RequiredElements: []string{"shadow"},
			Fallback:         "A shadow peels away from the corner and stands where the light should fall.",
		},
		{
			ID:          "pursuit",
			Severity:    "intense",
			ContextType: "entity_behavior",
			Prompt: "Describe the moment the player realizes the footsteps in {room} are " +
				"matching their own. Two sentences, second person, present tense.",
			Fallback: "The footsteps stop half a beat after yours. They are closer than the room allows.",
		},
	}

	for _, tpl := range templates {
		data, err := yaml.Marshal(tpl)
		if err != nil {
			continue
		}

		path := filepath.Join(dir, tpl.ID+".yaml")
		if err := os.WriteFile(path, data, 0644); err != nil {
			continue
		}
	}

	return nil
}
