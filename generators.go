package guestuser

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Built-in generator registry keys.
const (
	GeneratorUUID     = "uuid"
	GeneratorNumbered = "numbered"
	GeneratorFriendly = "friendly"
)

var (
	generatorsMu sync.RWMutex
	generators   = map[string]NameGenerator{}
)

// RegisterNameGenerator makes a custom generator resolvable through the
// Config.NameGenerator key. Call before Config.Validate.
func RegisterNameGenerator(name string, gen NameGenerator) {
	if name == "" || gen == nil {
		return
	}
	generatorsMu.Lock()
	defer generatorsMu.Unlock()
	generators[name] = gen
}

// ResolveNameGenerator looks up a registered generator by key.
func ResolveNameGenerator(name string) (NameGenerator, error) {
	generatorsMu.RLock()
	defer generatorsMu.RUnlock()
	if gen, ok := generators[name]; ok {
		return gen, nil
	}
	return nil, errors.New(
		fmt.Sprintf("unknown username generator %q", name),
		errors.CategoryOperation,
	).WithTextCode(TextCodeUnknownGenerator)
}

// UUIDNameGenerator yields random hex names sized to the username column.
// Collision probability is astronomically low but callers still retry.
func UUIDNameGenerator(maxLength int) NameGenerator {
	return func() string {
		name := strings.ReplaceAll(uuid.New().String(), "-", "")
		if maxLength > 0 && len(name) > maxLength {
			name = name[:maxLength]
		}
		return name
	}
}

// NumberedNameGenerator yields "<prefix><N digits>" with the numeric part
// drawn uniformly from [0, 10^digits). Collisions are expected at scale.
func NumberedNameGenerator(prefix string, digits int) NameGenerator {
	if digits <= 0 {
		digits = 4
	}
	limit := 1
	for i := 0; i < digits; i++ {
		limit *= 10
	}
	return func() string {
		return fmt.Sprintf("%s%0*d", prefix, digits, rand.IntN(limit))
	}
}

var defaultAdjectives = []string{
	"amber", "bold", "calm", "dapper", "eager", "fuzzy",
	"gentle", "happy", "keen", "lively", "mellow", "nimble",
	"quick", "rustic", "shiny", "witty",
}

var defaultNouns = []string{
	"badger", "comet", "falcon", "harbor", "lantern", "maple",
	"otter", "pebble", "quartz", "raven", "sparrow", "thicket",
	"walrus", "willow",
}

// FriendlyNameGenerator yields a readable adjective+noun+number name.
// Pass nil slices to use the bundled word lists.
func FriendlyNameGenerator(adjectives, nouns []string) NameGenerator {
	if len(adjectives) == 0 {
		adjectives = defaultAdjectives
	}
	if len(nouns) == 0 {
		nouns = defaultNouns
	}
	return func() string {
		adj := adjectives[rand.IntN(len(adjectives))]
		noun := nouns[rand.IntN(len(nouns))]
		return fmt.Sprintf("%s%s%02d", capitalize(adj), capitalize(noun), rand.IntN(100))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
