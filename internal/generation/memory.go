package generation

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMemoryCapacity = 10
	maxPromptMemories     = 3

	// significantLength marks responses long enough to remember on
	// their own, in runes.
	significantLength = 80

	typeMatchBonus    = 0.5
	impactWeight      = 0.3
	recencyWeight     = 0.2
	highScoreCutoff   = 0.7
	keywordRelevance  = 0.1
	baseRelevance     = 0.5
	impactLengthScale = 400.0
)

// Atmosphere vocabulary. A response touching any of these is worth
// carrying into later prompts regardless of its length.
var significantWords = []string{
	"blood", "shadow", "whisper", "mirror", "door",
	"dark", "face", "eyes", "breath", "silence",
}

// MemoryEntry is one remembered piece of generated content.
type MemoryEntry struct {
	ContextType     ContextType `json:"context_type"`
	Content         string      `json:"content"`
	Relevance       float64     `json:"relevance"`        // 0-1: baseline usefulness
	EmotionalImpact float64     `json:"emotional_impact"` // 0-1: how hard it lands
	Timestamp       time.Time   `json:"timestamp"`
}

// ContextualMemory is a bounded ring of significant generated content,
// oldest evicted first. Selection scores are recomputed on every use
// rather than decayed by a clock.
type ContextualMemory struct {
	entries  []MemoryEntry
	capacity int

	// Thread safety
	mutex sync.RWMutex
}

// NewContextualMemory creates a ring holding up to capacity entries.
func NewContextualMemory(capacity int) *ContextualMemory {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &ContextualMemory{
		entries:  make([]MemoryEntry, 0, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, evicting the oldest once the ring is full.
func (m *ContextualMemory) Add(entry MemoryEntry) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries = append(m.entries, entry)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[1:]
	}
}

// Entries returns a copy of the ring, oldest first.
func (m *ContextualMemory) Entries() []MemoryEntry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]MemoryEntry(nil), m.entries...)
}

// Len reports how many entries are held.
func (m *ContextualMemory) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.entries)
}

// Select returns up to limit entries worth injecting into a prompt of
// the given context type: entries of the same type, plus any entry
// whose relevance or impact runs high. Best scores first.
func (m *ContextualMemory) Select(ctxType ContextType, limit int) []MemoryEntry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	type scored struct {
		entry MemoryEntry
		score float64
	}

	n := len(m.entries)
	candidates := make([]scored, 0, n)
	for i, entry := range m.entries {
		eligible := entry.ContextType == ctxType ||
			entry.Relevance >= highScoreCutoff ||
			entry.EmotionalImpact >= highScoreCutoff
		if !eligible {
			continue
		}

		score := entry.Relevance + impactWeight*entry.EmotionalImpact
		if entry.ContextType == ctxType {
			score += typeMatchBonus
		}
		if n > 1 {
			score += recencyWeight * float64(i) / float64(n-1)
		}
		candidates = append(candidates, scored{entry: entry, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	selected := make([]MemoryEntry, len(candidates))
	for i, c := range candidates {
		selected[i] = c.entry
	}
	return selected
}

// significance decides whether a generated response deserves a memory
// slot and, if so, with what weights.
func significance(text string) (relevance, impact float64, ok bool) {
	hits := 0
	lower := strings.ToLower(text)
	for _, w := range significantWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}

	long := len([]rune(text)) >= significantLength
	if !long && hits == 0 {
		return 0, 0, false
	}

	relevance = clampScore(baseRelevance + keywordRelevance*float64(hits))
	impact = clampScore(float64(len([]rune(text))) / impactLengthScale)
	return relevance, impact, true
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
