package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
)

// skillScore is the fixed near-ceiling score assigned to matched skill
// fragments; ordering among them comes from configured priority.
const skillScore = 0.99

// SkillFragment is one entry of the static trigger table. Patterns are
// compiled once at load time, never per request.
type SkillFragment struct {
	ID       string
	Pattern  *regexp.Regexp
	Priority int
	Content  string
	Tags     []string
	Tokens   int
}

type skillDef struct {
	ID       string   `json:"id"`
	Pattern  string   `json:"pattern"`
	Priority int      `json:"priority"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
}

// SkillSet holds the compiled trigger table sorted by ascending priority.
type SkillSet struct {
	fragments []SkillFragment
}

type tokenCounter interface {
	Count(text string) int
}

// LoadSkills reads the skill table from a JSON file. A missing file yields
// an empty set; a malformed file or pattern is a configuration error and
// fails load.
func LoadSkills(path string, counter tokenCounter) (*SkillSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SkillSet{}, nil
		}
		return nil, fmt.Errorf("read skills file: %w", err)
	}

	var defs []skillDef
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse skills file: %w", err)
	}
	return NewSkillSet(defs, counter)
}

func NewSkillSet(defs []skillDef, counter tokenCounter) (*SkillSet, error) {
	set := &SkillSet{fragments: make([]SkillFragment, 0, len(defs))}
	for _, d := range defs {
		re, err := regexp.Compile("(?i)" + d.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile skill pattern %q: %w", d.ID, err)
		}
		set.fragments = append(set.fragments, SkillFragment{
			ID:       d.ID,
			Pattern:  re,
			Priority: d.Priority,
			Content:  d.Content,
			Tags:     d.Tags,
			Tokens:   counter.Count(d.Content),
		})
	}
	sort.SliceStable(set.fragments, func(i, j int) bool {
		if set.fragments[i].Priority != set.fragments[j].Priority {
			return set.fragments[i].Priority < set.fragments[j].Priority
		}
		return set.fragments[i].ID < set.fragments[j].ID
	})
	return set, nil
}

// Match returns the fragments whose patterns fire on the query, in priority
// order.
func (s *SkillSet) Match(query string) []SkillFragment {
	var matched []SkillFragment
	for _, f := range s.fragments {
		if f.Pattern.MatchString(query) {
			matched = append(matched, f)
		}
	}
	return matched
}

// Tags returns the union of tags across the matched fragments, used as the
// active skill tags for scoring.
func Tags(fragments []SkillFragment) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, f := range fragments {
		for _, t := range f.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}
