package routing

import (
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/zhuzhichaoTM/llm-router/pkg/config"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
)

// RuleEvaluator decides whether one rule's condition matches a request. The
// engine's priority-ordered rule loop is agnostic to whether the condition
// came from structured fields or a compiled expression.
type RuleEvaluator interface {
	Matches(rule config.RoutingRule, req *providers.ChatRequest) (bool, error)
}

// StructuredEvaluator handles the pattern and complexity condition types.
type StructuredEvaluator struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewStructuredEvaluator builds an evaluator with a compiled-pattern cache.
func NewStructuredEvaluator() *StructuredEvaluator {
	return &StructuredEvaluator{patterns: make(map[string]*regexp.Regexp)}
}

// Matches evaluates a structured condition against the request's
// concatenated message text. Pattern conditions are regular expressions,
// matched case-insensitively; a pattern that fails to compile matches
// nothing. Complexity conditions compare the content's rune count against
// the rule's bounds, with a zero max meaning unbounded.
func (e *StructuredEvaluator) Matches(rule config.RoutingRule, req *providers.ChatRequest) (bool, error) {
	content := req.ContentText()

	switch rule.ConditionType {
	case config.ConditionPattern:
		re := e.compiled(rule.Pattern)
		if re == nil {
			return false, nil
		}
		return re.MatchString(content), nil

	case config.ConditionComplexity:
		complexity := utf8.RuneCountInString(content)
		if complexity < rule.MinComplexity {
			return false, nil
		}
		if rule.MaxComplexity > 0 && complexity > rule.MaxComplexity {
			return false, nil
		}
		return true, nil

	default:
		return false, nil
	}
}

func (e *StructuredEvaluator) compiled(pattern string) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.patterns[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		// Cache the failure so a bad pattern is compiled only once.
		e.patterns[pattern] = nil
		return nil
	}
	e.patterns[pattern] = re
	return re
}
