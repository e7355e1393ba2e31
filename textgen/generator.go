// textgen/generator.go
package textgen

import (
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
)

var placeholderPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// Generator produces random paragraphs from sentence templates. Safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
	mu  sync.Mutex
}

func NewGenerator() *Generator {
	return NewGeneratorWithSeed(time.Now().UnixNano())
}

func NewGeneratorWithSeed(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Paragraph returns one to four sentences; roughly a quarter of them open
// with a lead-in phrase.
func (g *Generator) Paragraph() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 1 + g.rng.Intn(4)
	sentences := make([]string, 0, count)
	for i := 0; i < count; i++ {
		sentence := g.expand(templates[g.rng.Intn(len(templates))])
		if g.rng.Float64() < 0.25 {
			sentence = phrases[g.rng.Intn(len(phrases))] + " " + sentence
		}
		sentences = append(sentences, capitalize(sentence)+".")
	}
	return strings.Join(sentences, " ")
}

func (g *Generator) expand(template string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		action := strings.TrimSpace(strings.Trim(match, "{}"))
		fn, exists := actions[action]
		if !exists {
			return match
		}
		return fn(g.rng)
	})
}

var actions = map[string]func(rng *rand.Rand) string{
	"noun":      func(rng *rand.Rand) string { return pick(rng, nouns) },
	"nouns":     func(rng *rand.Rand) string { return pluralize(pick(rng, nouns)) },
	"a_noun":    func(rng *rand.Rand) string { return articlize(pick(rng, nouns)) },
	"adjective": func(rng *rand.Rand) string { return pick(rng, adjectives) },
	"an_adjective": func(rng *rand.Rand) string {
		return articlize(pick(rng, adjectives))
	},
	"verb":      func(rng *rand.Rand) string { return pick(rng, verbs) },
	"verbs":     func(rng *rand.Rand) string { return thirdPerson(pick(rng, verbs)) },
	"verb_past": func(rng *rand.Rand) string { return pastTense(pick(rng, verbs)) },
	"verb_present_participle": func(rng *rand.Rand) string {
		return presentParticiple(pick(rng, verbs))
	},
	"a_verb": func(rng *rand.Rand) string {
		return articlize(presentParticiple(pick(rng, verbs)))
	},
}

func pick(rng *rand.Rand, words []string) string {
	return words[rng.Intn(len(words))]
}

func articlize(word string) string {
	if len(word) > 0 && strings.ContainsRune("aeiou", unicode.ToLower(rune(word[0]))) {
		return "an " + word
	}
	return "a " + word
}

func pluralize(noun string) string {
	switch {
	case strings.HasSuffix(noun, "s"), strings.HasSuffix(noun, "x"),
		strings.HasSuffix(noun, "z"), strings.HasSuffix(noun, "ch"),
		strings.HasSuffix(noun, "sh"):
		return noun + "es"
	case strings.HasSuffix(noun, "y") && !hasVowelBeforeY(noun):
		return noun[:len(noun)-1] + "ies"
	default:
		return noun + "s"
	}
}

func hasVowelBeforeY(word string) bool {
	if len(word) < 2 {
		return false
	}
	return strings.ContainsRune("aeiou", rune(word[len(word)-2]))
}

func thirdPerson(verb string) string {
	return pluralize(verb)
}

func pastTense(verb string) string {
	switch {
	case strings.HasSuffix(verb, "e"):
		return verb + "d"
	case strings.HasSuffix(verb, "y") && !hasVowelBeforeY(verb):
		return verb[:len(verb)-1] + "ied"
	default:
		return verb + "ed"
	}
}

func presentParticiple(verb string) string {
	if strings.HasSuffix(verb, "e") && !strings.HasSuffix(verb, "ee") {
		return verb[:len(verb)-1] + "ing"
	}
	return verb + "ing"
}

func capitalize(sentence string) string {
	if sentence == "" {
		return sentence
	}
	return strings.ToUpper(sentence[:1]) + sentence[1:]
}
