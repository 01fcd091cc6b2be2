package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Choice is one of the four legal answers.
type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
	ChoiceC Choice = "C"
	ChoiceD Choice = "D"
)

// ParseChoice accepts a, b, c, d in either case.
func ParseChoice(raw string) (Choice, bool) {
	switch c := Choice(strings.ToUpper(strings.TrimSpace(raw))); c {
	case ChoiceA, ChoiceB, ChoiceC, ChoiceD:
		return c, true
	}
	return "", false
}

// AnswerKey maps a question id (e.g. "q37") to its correct choice.
type AnswerKey map[string]Choice

// QuestionIDs returns the keys in a stable order.
func (k AnswerKey) QuestionIDs() []string {
	ids := make([]string, 0, len(k))
	for id := range k {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Raw converts the key back to plain strings, as stored and exported.
func (k AnswerKey) Raw() map[string]string {
	out := make(map[string]string, len(k))
	for id, c := range k {
		out[id] = string(c)
	}
	return out
}

// PartLayout fixes how many questions each part must have. Used by deployments
// whose answer sheets have a known shape; a nil layout skips the count check.
type PartLayout struct {
	// Prefix is prepended to the running question number, "q" by default.
	Prefix string
	// Counts holds the expected number of questions per part, in part order.
	Counts []int
}

// Total is the number of questions the layout expects.
func (l PartLayout) Total() int {
	n := 0
	for _, c := range l.Counts {
		n += c
	}
	return n
}

// ValidateAnswerKey turns an untyped answer map into an AnswerKey, rejecting
// empty question ids and values outside A-D. When layout is non-nil the key
// must contain exactly the question ids the layout describes.
func ValidateAnswerKey(raw map[string]string, layout *PartLayout) (AnswerKey, error) {
	key := make(AnswerKey, len(raw))
	for id, value := range raw {
		qid := strings.TrimSpace(id)
		if qid == "" {
			return nil, fmt.Errorf("%w: empty question id", ErrInvalidAnswerKey)
		}
		if _, dup := key[qid]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", ErrInvalidAnswerKey, qid)
		}
		choice, ok := ParseChoice(value)
		if !ok {
			return nil, fmt.Errorf("%w: question %q has choice %q", ErrInvalidAnswerKey, qid, value)
		}
		key[qid] = choice
	}
	if layout != nil {
		if err := layout.check(key); err != nil {
			return nil, err
		}
	}
	return key, nil
}

func (l PartLayout) check(key AnswerKey) error {
	prefix := l.Prefix
	if prefix == "" {
		prefix = "q"
	}
	if len(key) != l.Total() {
		return fmt.Errorf("%w: expected %d questions, got %d", ErrInvalidAnswerKey, l.Total(), len(key))
	}
	n := 0
	for part, count := range l.Counts {
		for i := 0; i < count; i++ {
			n++
			qid := fmt.Sprintf("%s%d", prefix, n)
			if _, ok := key[qid]; !ok {
				return fmt.Errorf("%w: part %d is missing %s", ErrInvalidAnswerKey, part+1, qid)
			}
		}
	}
	return nil
}
