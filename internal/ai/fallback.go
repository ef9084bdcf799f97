package ai

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"companion-chat/internal/models"
)

// FallbackSet holds canned texts for one persona kind. "{name}" is replaced
// with the persona name.
type FallbackSet struct {
	Replies []string `yaml:"replies"`
	Nudges  []string `yaml:"nudges"`
}

// Catalog is the persona-keyed fallback content used when no provider answers.
type Catalog struct {
	Default FallbackSet            `yaml:"default"`
	Kinds   map[string]FallbackSet `yaml:"kinds"`

	mu  sync.Mutex
	rnd *rand.Rand
}

// DefaultCatalog returns the built-in fallback texts.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Default: FallbackSet{
			Replies: []string{
				"I'm right here with you! Tell me more?",
				"That sounds interesting! What happened next?",
				"I love hearing from you. How are you feeling right now?",
			},
			Nudges: []string{
				"{name} is wondering how your day is going!",
				"{name} misses you. Come say hi?",
				"It's been a while! {name} has been waiting for you.",
			},
		},
		Kinds: map[string]FallbackSet{
			"dog": {
				Replies: []string{
					"Woof! I'm wagging my tail just reading that!",
					"Arf! Tell me more, I'm all ears!",
				},
				Nudges: []string{
					"{name} brought you a ball and is waiting by the door!",
					"{name} is wagging at the door. Play time?",
				},
			},
			"cat": {
				Replies: []string{
					"Mrrow. I suppose that is mildly interesting. Go on.",
					"*purrs* I'm listening.",
				},
				Nudges: []string{
					"{name} knocked something off the table to get your attention.",
					"{name} is curled up and wondering where you went.",
				},
			},
		},
	}
}

// LoadCatalog reads a YAML catalog. Missing sections keep the built-in texts;
// an empty path returns the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback catalog: %w", err)
	}

	var loaded Catalog
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse fallback catalog: %w", err)
	}

	if replies := nonBlank(loaded.Default.Replies); len(replies) > 0 {
		catalog.Default.Replies = replies
	}
	if nudges := nonBlank(loaded.Default.Nudges); len(nudges) > 0 {
		catalog.Default.Nudges = nudges
	}
	for kind, set := range loaded.Kinds {
		catalog.Kinds[strings.ToLower(kind)] = FallbackSet{
			Replies: nonBlank(set.Replies),
			Nudges:  nonBlank(set.Nudges),
		}
	}
	return catalog, nil
}

// nonBlank drops entries that would render as empty text.
func nonBlank(texts []string) []string {
	var out []string
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// WithRand sets the source used to pick among candidates.
func (c *Catalog) WithRand(rnd *rand.Rand) *Catalog {
	c.mu.Lock()
	c.rnd = rnd
	c.mu.Unlock()
	return c
}

// Pick returns a fallback text for the persona. Selection among the
// candidates is random only for variety.
func (c *Catalog) Pick(kind PromptKind, persona models.Persona) string {
	candidates := c.candidates(kind, persona)
	c.mu.Lock()
	var idx int
	if c.rnd != nil {
		idx = c.rnd.IntN(len(candidates))
	} else {
		idx = rand.IntN(len(candidates))
	}
	c.mu.Unlock()
	return render(candidates[idx], persona)
}

func (c *Catalog) candidates(kind PromptKind, persona models.Persona) []string {
	pick := func(set FallbackSet) []string {
		if kind == KindInactivityNudge {
			return set.Nudges
		}
		return set.Replies
	}
	if set, ok := c.Kinds[strings.ToLower(persona.Kind)]; ok {
		if texts := pick(set); len(texts) > 0 {
			return texts
		}
	}
	if texts := pick(c.Default); len(texts) > 0 {
		return texts
	}
	if kind == KindInactivityNudge {
		return []string{"{name} misses you."}
	}
	return []string{"I'm here!"}
}

func render(text string, persona models.Persona) string {
	name := persona.Name
	if name == "" {
		name = "Your companion"
	}
	return strings.ReplaceAll(text, "{name}", name)
}
