package psyche

import "strings"

// Choice lexical classes. A recorded choice is matched against these
// word lists to decide which traits it feeds.
var (
	cautionWords = []string{
		"observe", "watch", "look", "peek", "listen",
		"hide", "wait", "check", "avoid", "retreat",
	}
	approachWords = []string{
		"approach", "open", "enter", "search", "investigate",
		"read", "take", "follow", "descend", "touch",
	}
	violenceWords = []string{
		"attack", "strike", "break", "smash", "burn",
		"destroy", "fight", "throw", "tear",
	}
	distortionWords = []string{
		"mirror", "ritual", "whisper", "chant", "stare",
		"dream", "symbol", "candle", "reflection",
	}
)

// ChoiceClass marks which lexical classes a choice text belongs to.
// A single choice can belong to several classes at once.
type ChoiceClass struct {
	Caution    bool
	Approach   bool
	Violence   bool
	Distortion bool
}

// Classify matches the choice text against the lexicon.
// Matching is case-insensitive substring containment.
func Classify(text string) ChoiceClass {
	lower := strings.ToLower(text)
	return ChoiceClass{
		Caution:    matchAny(lower, cautionWords),
		Approach:   matchAny(lower, approachWords),
		Violence:   matchAny(lower, violenceWords),
		Distortion: matchAny(lower, distortionWords),
	}
}

func matchAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
