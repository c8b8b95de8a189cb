// Package sanitization redacts secrets from notification bodies before
// they leave the process. Two tiers exist on purpose: a regex-based
// primary pass that is precise but can in principle panic on a bad
// pattern, and a simple-string-matching fallback that never panics.
// A notification must reach a sink even if the primary pass fails —
// losing an alert because its own redaction logic broke is worse than
// delivering a coarser redaction.
package sanitization

import (
	"fmt"
	"regexp"
	"strings"
)

var secretPattern = regexp.MustCompile(
	`(?i)(password|passwd|pwd|token|api[_-]?key|secret|access[_-]?key)\s*[:=]\s*['"]?([^\s'",}\]]+)['"]?`,
)

const primaryRedaction = "***REDACTED***"
const fallbackRedaction = "[REDACTED]"

// fallbackKeywords drives SafeFallback's plain string scan, in the
// order checked.
var fallbackKeywords = []string{"password", "passwd", "pwd", "token", "api_key", "api-key", "apikey", "secret", "access_key"}

// Sanitizer redacts secret-shaped substrings from notification content.
type Sanitizer struct{}

// NewSanitizer returns a ready-to-use Sanitizer.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// SanitizeWithFallback redacts secrets using the regex-based primary
// pass. If that pass panics, it recovers and returns SafeFallback's
// result instead, along with the error that triggered the fallback so
// callers can log the degradation.
func (s *Sanitizer) SanitizeWithFallback(input string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sanitizer: primary pass panicked, used fallback: %v", r)
			result = s.SafeFallback(input)
		}
	}()
	return secretPattern.ReplaceAllString(input, "$1: "+primaryRedaction), nil
}

// SafeFallback redacts secrets using plain string matching only — no
// regex engine involved, so it cannot panic the way a pathological
// pattern against adversarial input could. It is coarser than the
// primary pass: it stops the redacted value at the first whitespace,
// comma, bracket, or quote, case-insensitively.
func (s *Sanitizer) SafeFallback(input string) string {
	lower := strings.ToLower(input)
	var b strings.Builder
	i := 0
	for i < len(input) {
		matched := false
		for _, kw := range fallbackKeywords {
			if !strings.HasPrefix(lower[i:], kw) {
				continue
			}
			after := i + len(kw)
			if after >= len(input) || input[after] != ':' {
				continue
			}
			j := after + 1
			for j < len(input) && (input[j] == ' ' || input[j] == '\t') {
				j++
			}
			quote := byte(0)
			if j < len(input) && (input[j] == '\'' || input[j] == '"') {
				quote = input[j]
				j++
			}
			start := j
			for j < len(input) && input[j] != ' ' && input[j] != '\t' && input[j] != ',' &&
				input[j] != '}' && input[j] != ']' && input[j] != quote && input[j] != '\n' {
				j++
			}
			if j == start {
				continue
			}
			b.WriteString(input[i:start])
			b.WriteString(fallbackRedaction)
			i = j
			if quote != 0 && i < len(input) && input[i] == quote {
				i++
			}
			matched = true
			break
		}
		if matched {
			continue
		}
		b.WriteByte(input[i])
		i++
	}
	return b.String()
}
