package matching

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	t.Parallel()

	const text = "Invoice #2024-17 from ACME Corp, total due: 1.200 EUR"

	tests := []struct {
		name        string
		algorithm   models.MatchAlgorithm
		pattern     string
		insensitive bool
		want        bool
	}{
		{"any hits one word", models.MatchAny, "receipt invoice", true, true},
		{"any is case sensitive when asked", models.MatchAny, "invoice", false, false},
		{"all needs every word", models.MatchAll, "acme invoice", true, true},
		{"all misses one word", models.MatchAll, "acme receipt", true, false},
		{"all ignores punctuation", models.MatchAll, "acme, corp!", true, true},
		{"exact substring", models.MatchExact, "acme corp", true, true},
		{"exact is not word based", models.MatchExact, "corp acme", true, false},
		{"regex", models.MatchRegex, `#\d{4}-\d+`, false, true},
		{"regex insensitive", models.MatchRegex, `^invoice`, true, true},
		{"empty pattern never matches", models.MatchAny, "  ", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Match(text, &models.MatchRule{Algorithm: tt.algorithm, Pattern: tt.pattern, CaseInsensitive: tt.insensitive})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_InvalidRegex(t *testing.T) {
	t.Parallel()

	_, err := Match("text", &models.MatchRule{Algorithm: models.MatchRegex, Pattern: "("})
	assert.Error(t, err)
}

func TestFindMatches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()

	for _, rule := range []*models.MatchRule{
		{ID: "r1", Kind: models.MatchKindTag, TargetID: "invoices", Algorithm: models.MatchAny, Pattern: "invoice bill", CaseInsensitive: true},
		{ID: "r2", Kind: models.MatchKindTag, TargetID: "invoices", Algorithm: models.MatchExact, Pattern: "total due", CaseInsensitive: true},
		{ID: "r3", Kind: models.MatchKindCorrespondent, TargetID: "acme", Algorithm: models.MatchAll, Pattern: "acme corp", CaseInsensitive: true},
		{ID: "r4", Kind: models.MatchKindDocumentType, TargetID: "contract", Algorithm: models.MatchAny, Pattern: "contract"},
		{ID: "r5", Kind: models.MatchKindStoragePath, TargetID: "broken", Algorithm: models.MatchRegex, Pattern: "["},
	} {
		require.NoError(t, store.SaveMatchRule(ctx, rule))
	}

	matcher := NewRuleMatcher(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := matcher.FindMatches(ctx, "Invoice from ACME Corp. Total due: 10")
	require.NoError(t, err)
	assert.True(t, result.Attempted)
	assert.Equal(t, []string{"invoices"}, result.Tags)
	assert.Equal(t, []string{"acme"}, result.Correspondents)
	assert.Empty(t, result.DocumentTypes)
	assert.Empty(t, result.StoragePaths)
	assert.False(t, result.Empty())
}
