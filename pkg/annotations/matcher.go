package annotations

import (
	"regexp"
	"strings"

	"github.com/go-logr/logr"
)

// literalCharset is the set of runes that never promote a token to a
// regex match, even when it happens to compile as one (plain namespace
// names are valid trivial regexes).
const literalCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-"

// Matcher matches a namespace name, either as an exact literal or as a
// full-anchored regular expression.
type Matcher struct {
	literal string
	re      *regexp.Regexp
}

// Matches reports whether ns satisfies this matcher.
func (m Matcher) Matches(ns string) bool {
	if m.re != nil {
		return m.re.MatchString(ns)
	}
	return ns == m.literal
}

// String returns the literal token, or the anchored pattern of a regex
// matcher, for logging.
func (m Matcher) String() string {
	if m.re != nil {
		return m.re.String()
	}
	return m.literal
}

// isRegexToken applies the charset half of the annotation schema's
// heuristic: it reports whether token contains at least one rune outside
// the plain namespace-name charset. CompileMatchers then compiles such
// tokens. A bare literal like "app-prod" is technically a valid (trivial)
// regex but is kept literal.
func isRegexToken(token string) bool {
	for _, r := range token {
		if !strings.ContainsRune(literalCharset, r) {
			return true
		}
	}
	return false
}

// CompileMatchers parses a list of already-split, trimmed tokens into
// Matchers. Tokens that look like a regex but fail to compile are
// logged and skipped rather than silently downgraded to literal
// matching.
func CompileMatchers(tokens []string, log logr.Logger) []Matcher {
	matchers := make([]Matcher, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if !isRegexToken(token) {
			matchers = append(matchers, Matcher{literal: token})
			continue
		}
		re, err := regexp.Compile("^(?:" + token + ")$")
		if err != nil {
			log.Info("invalid regex token in namespace annotation, skipping",
				"token", token, "error", err.Error())
			continue
		}
		matchers = append(matchers, Matcher{re: re})
	}
	return matchers
}

// Matches reports whether ns satisfies any of the given matchers, or
// ns == sourceNamespace (a source's own namespace is always permitted).
func Matches(ns, sourceNamespace string, matchers []Matcher) bool {
	if ns == sourceNamespace {
		return true
	}
	for _, m := range matchers {
		if m.Matches(ns) {
			return true
		}
	}
	return false
}

// splitTokens implements the namespace-list parsing rule: split by
// comma, trim whitespace, drop empties.
func splitTokens(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
