// Package matching suggests tags, correspondents, document types and storage
// paths for a document by comparing its text against stored match rules.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/protocol"
)

var _ protocol.Matcher = (*RuleMatcher)(nil)

// RuleMatcher evaluates every rule of the repository on each call.
type RuleMatcher struct {
	rules  persistence.MatchRuleRepository
	logger *slog.Logger
}

func NewRuleMatcher(rules persistence.MatchRuleRepository, logger *slog.Logger) *RuleMatcher {
	return &RuleMatcher{
		rules:  rules,
		logger: logger.With("module", "matcher"),
	}
}

func (m *RuleMatcher) FindMatches(ctx context.Context, text string) (models.MatchingResult, error) {
	result := models.MatchingResult{
		Attempted:      true,
		Tags:           []string{},
		Correspondents: []string{},
		DocumentTypes:  []string{},
		StoragePaths:   []string{},
	}

	rules, err := m.rules.MatchRules(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load match rules: %w", err)
	}

	for _, rule := range rules {
		ok, err := Match(text, rule)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping invalid match rule", "rule_id", rule.ID, "error", err)

			continue
		}

		if !ok {
			continue
		}

		switch rule.Kind {
		case models.MatchKindTag:
			result.Tags = appendUnique(result.Tags, rule.TargetID)
		case models.MatchKindCorrespondent:
			result.Correspondents = appendUnique(result.Correspondents, rule.TargetID)
		case models.MatchKindDocumentType:
			result.DocumentTypes = appendUnique(result.DocumentTypes, rule.TargetID)
		case models.MatchKindStoragePath:
			result.StoragePaths = appendUnique(result.StoragePaths, rule.TargetID)
		}
	}

	return result, nil
}

// Match reports whether text satisfies rule. Only an invalid regular
// expression is an error.
func Match(text string, rule *models.MatchRule) (bool, error) {
	pattern := strings.TrimSpace(rule.Pattern)
	if pattern == "" {
		return false, nil
	}

	text = strings.TrimSpace(text)

	if rule.Algorithm == models.MatchRegex {
		expr := pattern
		if rule.CaseInsensitive {
			expr = "(?i)" + expr
		}

		re, err := regexp.Compile(expr)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", rule.Pattern, err)
		}

		return re.MatchString(text), nil
	}

	if rule.CaseInsensitive {
		text = strings.ToLower(text)
		pattern = strings.ToLower(pattern)
	}

	switch rule.Algorithm {
	case models.MatchAll:
		words := splitWords(pattern)
		for _, word := range words {
			if !strings.Contains(text, word) {
				return false, nil
			}
		}

		return len(words) > 0, nil
	case models.MatchExact:
		return strings.Contains(text, pattern), nil
	default:
		for _, word := range splitWords(pattern) {
			if strings.Contains(text, word) {
				return true, nil
			}
		}

		return false, nil
	}
}

// splitWords splits on anything that is not a letter or a digit.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func appendUnique(values []string, v string) []string {
	if slices.Contains(values, v) {
		return values
	}

	return append(values, v)
}
