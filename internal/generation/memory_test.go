package generation

import (
	"fmt"
	"strings"
	"testing"
)

func TestContextualMemory_RingEviction(t *testing.T) {
	m := NewContextualMemory(3)
	for i := 0; i < 5; i++ {
		m.Add(MemoryEntry{Content: fmt.Sprintf("m%d", i)})
	}

	entries := m.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Content != "m2" || entries[2].Content != "m4" {
		t.Fatalf("wrong entries retained: %v", entries)
	}
}

func TestContextualMemory_SelectPrefersTypeMatch(t *testing.T) {
	m := NewContextualMemory(10)
	m.Add(MemoryEntry{ContextType: ContextWhisper, Content: "half-heard words", Relevance: 0.5})
	m.Add(MemoryEntry{ContextType: ContextRoomDescription, Content: "vivid room", Relevance: 0.8})
	m.Add(MemoryEntry{ContextType: ContextAmbientDetail, Content: "dull detail", Relevance: 0.1})

	selected := m.Select(ContextWhisper, 2)
	if len(selected) != 2 {
		t.Fatalf("selected = %d entries, want 2", len(selected))
	}
	// At comparable relevance the type match outranks the stranger.
	if selected[0].Content != "half-heard words" {
		t.Fatalf("first selection = %q, want the whisper entry", selected[0].Content)
	}
	if selected[1].Content != "vivid room" {
		t.Fatalf("second selection = %q, want the high-relevance entry", selected[1].Content)
	}
}

func TestContextualMemory_SelectSkipsIrrelevant(t *testing.T) {
	m := NewContextualMemory(10)
	m.Add(MemoryEntry{ContextType: ContextAmbientDetail, Content: "forgettable", Relevance: 0.1, EmotionalImpact: 0.1})

	if selected := m.Select(ContextWhisper, 3); len(selected) != 0 {
		t.Fatalf("selected %v, want nothing", selected)
	}
}

func TestContextualMemory_SelectIncludesHighImpact(t *testing.T) {
	m := NewContextualMemory(10)
	m.Add(MemoryEntry{ContextType: ContextAmbientDetail, Content: "the scream", EmotionalImpact: 0.9})

	selected := m.Select(ContextWhisper, 3)
	if len(selected) != 1 || selected[0].Content != "the scream" {
		t.Fatalf("selected = %v, want the high-impact entry", selected)
	}
}

func TestSignificance(t *testing.T) {
	if _, _, ok := significance("fine."); ok {
		t.Fatal("short bland text marked significant")
	}
	if _, _, ok := significance("a shadow crosses"); !ok {
		t.Fatal("keyword text not marked significant")
	}
	long := strings.Repeat("nothing of note here, plain as paper. ", 4)
	if _, _, ok := significance(long); !ok {
		t.Fatal("long text not marked significant")
	}

	relevance, impact, _ := significance("blood on the mirror, eyes in the dark")
	if relevance <= baseRelevance {
		t.Fatalf("relevance = %v, want above base for keyword hits", relevance)
	}
	if impact < 0 || impact > 1 {
		t.Fatalf("impact = %v out of range", impact)
	}
}
