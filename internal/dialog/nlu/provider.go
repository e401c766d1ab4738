// Package nlu defines the external intent-extractor interface the Dialog
// State Machine (E) calls in its Collecting state, plus two concrete
// implementations: a generic HTTP endpoint (NLU_ENDPOINT/NLU_API_KEY) and
// a Gemini-backed implementation.
package nlu

import (
	"context"

	"github.com/brightline-voice/dialogd/internal/dialogmodel"
)

// Provider maps (history, utterance, current slots) -> structured intent,
// exactly the external collaborator named in spec.md §1/§4.5.
type Provider interface {
	Extract(ctx context.Context, history []dialogmodel.HistoryTurn, utterance string, slots map[string]string) (dialogmodel.NLUResult, error)
}

// affirmativeLexicon is the configurable affirmative-phrase set used to
// detect a "yes" at ConfirmingTime. The dialog state machine checks it as
// a cheap local pre-filter ahead of whatever intent a Provider returned,
// so a plain "yes"/"no" doesn't depend entirely on that external call.
var affirmativeLexicon = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "correct": true,
	"confirm": true, "confirmed": true, "that's right": true,
	"that is right": true, "sounds good": true, "right": true,
}

// IsAffirmative reports whether text matches the affirmative lexicon.
func IsAffirmative(text string) bool {
	return affirmativeLexicon[normalize(text)]
}

var negativeLexicon = map[string]bool{
	"no": true, "nope": true, "wrong": true, "incorrect": true,
	"that's wrong": true, "not right": true,
}

// IsNegative reports whether text matches the negative lexicon.
func IsNegative(text string) bool {
	return negativeLexicon[normalize(text)]
}

func normalize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case (r >= 'a' && r <= 'z') || r == ' ' || r == '\'':
			out = append(out, r)
		}
	}
	return string(out)
}
