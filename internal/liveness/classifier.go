package liveness

import "strings"

// deadStreamPhrases are the upstream error fragments that definitively mean
// a source is finished or was never live. Anything not on this list
// (timeouts, auth failures, transport errors) is transient and must not
// retire a source.
var deadStreamPhrases = []string{
	"not a live video",
	"live stream recording is not available",
	"live chat is disabled",
	"malformed video id",
	"video unavailable",
	"room not found",
}

// Classifier inspects raw fetch error strings and decides which sources are
// definitively no longer live.
type Classifier struct {
	phrases []string
}

// NewClassifier returns a classifier with the default dead-stream phrase set.
func NewClassifier() *Classifier {
	return &Classifier{phrases: deadStreamPhrases}
}

// NewClassifierWithPhrases returns a classifier matching a custom phrase set.
func NewClassifierWithPhrases(phrases []string) *Classifier {
	return &Classifier{phrases: phrases}
}

// Classify returns the source ids among current that the given raw errors
// prove NotLive. An error counts only if it contains a dead-stream phrase;
// the affected source is found by locating a tracked id inside the error
// text. Errors that match no phrase, or name no tracked source, classify
// nothing.
func (c *Classifier) Classify(rawErrors []string, current []string) []string {
	if len(rawErrors) == 0 || len(current) == 0 {
		return nil
	}

	var dead []string
	seen := make(map[string]bool)

	for _, raw := range rawErrors {
		if raw == "" || !c.isDeadSignal(raw) {
			continue
		}
		for _, id := range current {
			if id == "" || seen[id] {
				continue
			}
			if strings.Contains(raw, id) {
				seen[id] = true
				dead = append(dead, id)
			}
		}
	}

	return dead
}

func (c *Classifier) isDeadSignal(raw string) bool {
	lower := strings.ToLower(raw)
	for _, p := range c.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
