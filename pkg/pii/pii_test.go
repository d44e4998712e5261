package pii

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgov/pipeline/pkg/config"
)

type fakeLoader struct {
	entries []DictionaryEntry
	err     error
}

func (f fakeLoader) LoadPIIDictionary(ctx context.Context, orgSlug, agentSlug string) ([]DictionaryEntry, error) {
	return f.entries, f.err
}

func emailConfig() config.PIIConfig {
	return config.PIIConfig{
		Patterns: []config.PIIPatternConfig{
			{Name: "email", Pattern: `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`},
		},
	}
}

// TestPseudonymizeThenReverse_RoundTripsPlainEmail exercises spec.md §8
// scenario S4: a prompt containing an email address round-trips through
// pseudonymize then reverse unchanged.
func TestPseudonymizeThenReverse_RoundTripsPlainEmail(t *testing.T) {
	tr := New(emailConfig(), fakeLoader{})

	result, err := tr.Pseudonymize(context.Background(), "email me at alice@example.com", "acme", "planner")
	require.NoError(t, err)
	assert.NotContains(t, result.Text, "alice@example.com")
	assert.Equal(t, 1, result.PatternHits)

	restored := tr.Reverse(result.Text, result.Mappings)
	assert.Equal(t, "email me at alice@example.com", restored)
}

func TestPseudonymize_DictionaryTermsReplacedLongestFirst(t *testing.T) {
	loader := fakeLoader{entries: []DictionaryEntry{
		{Term: "Acme", Pseudonym: "@000000000001"},
		{Term: "Acme Corp", Pseudonym: "@000000000002"},
	}}
	tr := New(config.PIIConfig{}, loader)

	result, err := tr.Pseudonymize(context.Background(), "Acme Corp signed the contract", "acme", "")
	require.NoError(t, err)

	assert.Equal(t, "@000000000002 signed the contract", result.Text)
	restored := tr.Reverse(result.Text, result.Mappings)
	assert.Equal(t, "Acme Corp signed the contract", restored)
}

func TestPseudonymize_DictionaryLoadFailureDegradesToPatternOnly(t *testing.T) {
	loader := fakeLoader{err: errors.New("dictionary backend unreachable")}
	tr := New(emailConfig(), loader)

	result, err := tr.Pseudonymize(context.Background(), "contact bob@example.com", "acme", "planner")
	require.NoError(t, err)
	assert.True(t, result.DictionaryDegraded)
	assert.Equal(t, 1, result.PatternHits)
}

func TestPseudonymize_NoMatchesLeavesTextUnchanged(t *testing.T) {
	tr := New(emailConfig(), fakeLoader{})

	result, err := tr.Pseudonymize(context.Background(), "no sensitive data here", "acme", "planner")
	require.NoError(t, err)
	assert.Equal(t, "no sensitive data here", result.Text)
	assert.Empty(t, result.Mappings)
}

func TestNew_SkipsInvalidPatternWithoutFailing(t *testing.T) {
	cfg := config.PIIConfig{Patterns: []config.PIIPatternConfig{
		{Name: "broken", Pattern: "("},
		{Name: "email", Pattern: `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`},
	}}
	tr := New(cfg, fakeLoader{})
	require.Len(t, tr.patterns, 1)
}
