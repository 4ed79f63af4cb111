// Package generator defines the contract with the content-generation
// collaborator: the candidate item shape, the dedup fingerprint, and the
// preference summary extracted from a profile to steer generation.
package generator

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// Difficulty is an ordered scale; comparisons use Rank.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Rank returns the ordinal position of the difficulty (easy=0, medium=1,
// hard=2). Unknown values rank hardest so they never slip through an
// "at most medium" filter.
func (d Difficulty) Rank() int {
	switch d {
	case DifficultyEasy:
		return 0
	case DifficultyMedium:
		return 1
	case DifficultyHard:
		return 2
	}
	return 3
}

// Item is a candidate feed item as returned by the generation service.
type Item struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Answer     string     `json:"answer,omitempty"`
	Choices    []string   `json:"choices,omitempty"`
	Topic      string     `json:"topic"`
	Subtopic   string     `json:"subtopic"`
	Branch     string     `json:"branch"`
	Tags       []string   `json:"tags,omitempty"`
	Difficulty Difficulty `json:"difficulty"`
}

// Fingerprint returns the dedup signature for the item: normalized question
// text plus sorted tags, hashed. Two generations of the same question with
// cosmetic wording differences in casing, punctuation, or spacing collide.
func (it Item) Fingerprint() string {
	tags := make([]string, len(it.Tags))
	for i, tag := range it.Tags {
		tags[i] = strings.ToLower(strings.TrimSpace(tag))
	}
	sort.Strings(tags)

	h := fnv.New64a()
	h.Write([]byte(normalizeText(it.Text)))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(tags, ",")))
	return fmt.Sprintf("%016x", h.Sum64())
}

// normalizeText lowercases, drops everything but letters/digits/spaces, and
// collapses runs of whitespace to single spaces.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}
