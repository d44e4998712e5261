// Package pii implements the bidirectional PII Transformer: pseudonymize
// before a prompt leaves the process, reverse the pseudonyms out of
// whatever comes back. Patterns are compiled once at construction time,
// following pkg/masking's eager-compile shape; the dictionary is loaded
// per call since it is org/agent scoped and changes independently of the
// process lifetime.
package pii

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/agentgov/pipeline/pkg/config"
)

// pseudonymPrefix marks the disjoint token namespace pseudonyms are drawn
// from, so a reversed token can never collide with plaintext the user
// actually typed (spec.md §4.3: "reserving pseudonyms from a disjoint
// namespace").
const pseudonymPrefix = "@"

// Mapping is one pseudonym -> original substitution recorded during
// Pseudonymize, sufficient on its own to invert the transformation.
type Mapping struct {
	Pseudonym string
	Original  string
}

// Result is the output of Pseudonymize.
type Result struct {
	Text               string
	Mappings           []Mapping
	PatternHits        int
	DictionaryDegraded bool // true when the dictionary could not be loaded
}

// DictionaryLoader loads the org/agent-scoped term->pseudonym dictionary.
// Implemented by pkg/store; kept as an interface here so pii has no
// compile-time dependency on the storage layer.
type DictionaryLoader interface {
	LoadPIIDictionary(ctx context.Context, orgSlug, agentSlug string) ([]DictionaryEntry, error)
}

// DictionaryEntry mirrors pkg/store.PIIDictionaryEntry without importing
// it, avoiding an import cycle (store depends on nothing in pii, but pii
// living inside store would make the gateway's dependency graph circular
// once the gateway needs both).
type DictionaryEntry struct {
	Term      string
	Pseudonym string
}

// compiledPattern is a single regex rule from config, compiled once and
// kept with its configured name.
type compiledPattern struct {
	name  string
	regex *regexp.Regexp
}

// Transformer compiles config.PIIConfig's patterns once and pseudonymizes
// or reverses text against a per-call dictionary.
type Transformer struct {
	patterns []compiledPattern
	loader   DictionaryLoader
}

// New compiles every pattern in cfg.Patterns. Invalid patterns are logged
// and skipped rather than failing construction — one bad pattern must not
// take down the whole transformer (pkg/masking does the same for its
// built-in patterns).
func New(cfg config.PIIConfig, loader DictionaryLoader) *Transformer {
	t := &Transformer{loader: loader}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("skipping invalid PII pattern", "pattern", p.Name, "error", err)
			continue
		}
		t.patterns = append(t.patterns, compiledPattern{name: p.Name, regex: re})
	}
	return t
}

// Pseudonymize replaces dictionary terms (longest match first, ties
// broken left-most) and then pattern hits with disjoint-namespace tokens.
// A DictionaryLoadFailure degrades to pattern-only rather than failing the
// call (spec.md §4.3).
func (t *Transformer) Pseudonymize(ctx context.Context, text, orgSlug, agentSlug string) (Result, error) {
	result := Result{Text: text}

	entries, err := t.loader.LoadPIIDictionary(ctx, orgSlug, agentSlug)
	if err != nil {
		slog.Warn("PII dictionary load failed, degrading to pattern-only", "org", orgSlug, "agent", agentSlug, "error", err)
		result.DictionaryDegraded = true
		entries = nil
	}

	result.Text = t.applyDictionary(result.Text, entries, &result.Mappings)
	result.Text = t.applyPatterns(result.Text, &result.Mappings, &result.PatternHits)

	return result, nil
}

// applyDictionary substitutes the longest terms first so that a shorter
// term that happens to be a substring of a longer one never shadows it
// (e.g. "Acme" inside "Acme Corp").
func (t *Transformer) applyDictionary(text string, entries []DictionaryEntry, mappings *[]Mapping) string {
	sort.SliceStable(entries, func(i, j int) bool {
		if len(entries[i].Term) != len(entries[j].Term) {
			return len(entries[i].Term) > len(entries[j].Term)
		}
		return strings.Index(text, entries[i].Term) < strings.Index(text, entries[j].Term)
	})

	for _, e := range entries {
		if e.Term == "" || !strings.Contains(text, e.Term) {
			continue
		}
		text = strings.ReplaceAll(text, e.Term, e.Pseudonym)
		*mappings = append(*mappings, Mapping{Pseudonym: e.Pseudonym, Original: e.Term})
	}
	return text
}

// applyPatterns scans remaining text for each configured regex and
// replaces every match with a freshly generated pseudonym, recording the
// mapping so Reverse can invert it.
func (t *Transformer) applyPatterns(text string, mappings *[]Mapping, hits *int) string {
	for _, p := range t.patterns {
		text = p.regex.ReplaceAllStringFunc(text, func(match string) string {
			token := newPseudonym()
			*mappings = append(*mappings, Mapping{Pseudonym: token, Original: match})
			*hits++
			return token
		})
	}
	return text
}

// Reverse replaces every pseudonym in text with its recorded original.
// Every generated pseudonym is a fixed-length "@" + 12 hex chars token
// drawn from a namespace disjoint from ordinary words, so a plain
// substring replacement cannot accidentally clip a longer token the way
// it could for variable-length identifiers.
func (t *Transformer) Reverse(text string, mappings []Mapping) string {
	for _, m := range mappings {
		text = strings.ReplaceAll(text, m.Pseudonym, m.Original)
	}
	return text
}

// newPseudonym draws a fixed-length token from the reserved disjoint
// namespace (spec.md §4.3: "@<hex12> prefix").
func newPseudonym() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return pseudonymPrefix + hex.EncodeToString(b)
}
