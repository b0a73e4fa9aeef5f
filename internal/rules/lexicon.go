// Package rules rewrites text before it is sent for speech synthesis, so that
// call signs, abbreviations and grid references are spoken the way operators say them.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("invalid pronunciation rule")

const defaultIterationLimit = 30

type substitution interface {
	rewrite(input string) (output string, changed bool)
}

// Lexicon applies pronunciation rules loaded from a rules file. Rules are applied in file
// order, repeatedly, until the text stops changing or the iteration limit is reached.
//
// Supported lines:
//
//	# comment
//	word => spoken form        whole-word, case-insensitive
//	s/pattern/replacement/flags
type Lexicon struct {
	rules []substitution
	limit int
}

// Load reads a rules file. A blank path or a missing file yields an empty lexicon.
func Load(path string, iterationLimit int) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return Parse("", iterationLimit)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Parse("", iterationLimit)
		}
		return nil, fmt.Errorf("read rules file %q: %w", path, err)
	}
	lexicon, err := Parse(string(contents), iterationLimit)
	if err != nil {
		return nil, fmt.Errorf("rules file %q: %w", path, err)
	}
	return lexicon, nil
}

// Parse compiles rules from their textual form.
func Parse(contents string, iterationLimit int) (*Lexicon, error) {
	if iterationLimit <= 0 {
		iterationLimit = defaultIterationLimit
	}
	lexicon := &Lexicon{limit: iterationLimit}

	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			rule substitution
			err  error
		)
		switch {
		case isExpression(line):
			rule, err = parseExpression(line)
		case strings.Contains(line, "=>"):
			rule, err = parseWord(line)
		default:
			err = fmt.Errorf("%w: expected 'word => spoken' or 's/pattern/replacement/'", ErrSyntax)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		lexicon.rules = append(lexicon.rules, rule)
	}
	return lexicon, nil
}

// Len reports the number of compiled rules.
func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return len(l.rules)
}

// Apply rewrites text. It never fails; the error return satisfies the rewriter port.
func (l *Lexicon) Apply(text string) (string, error) {
	if l.Len() == 0 {
		return text, nil
	}

	result := text
	for pass := 0; pass < l.limit; pass++ {
		changed := false
		for _, rule := range l.rules {
			if next, ok := rule.rewrite(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}

// wordRule matches a word or phrase delimited by non-letters. Go's \b is ASCII-only, so the
// boundaries are matched explicitly to cover Arabic text.
type wordRule struct {
	re     *regexp.Regexp
	spoken string
}

const boundary = `[^\p{L}\p{N}_]`

func parseWord(line string) (substitution, error) {
	written, spoken, _ := strings.Cut(line, "=>")
	written = strings.TrimSpace(written)
	spoken = strings.TrimSpace(spoken)
	if written == "" {
		return nil, fmt.Errorf("%w: empty word", ErrSyntax)
	}

	re, err := regexp.Compile(`(?i)(^|` + boundary + `)` + regexp.QuoteMeta(written) + `($|` + boundary + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return wordRule{re: re, spoken: strings.ReplaceAll(spoken, "$", "$$")}, nil
}

func (r wordRule) rewrite(input string) (string, bool) {
	output := r.re.ReplaceAllString(input, "${1}"+r.spoken+"${2}")
	return output, output != input
}

// expressionRule is a sed-style substitution. Without the g flag only the first match is
// replaced per pass.
type expressionRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func isExpression(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1])
}

func parseExpression(line string) (substitution, error) {
	delim := line[1]
	pattern, next, err := scanDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern: %v", ErrSyntax, err)
	}
	replacement, next, err := scanDelimited(line, next, delim)
	if err != nil {
		return nil, fmt.Errorf("%w: replacement: %v", ErrSyntax, err)
	}

	global := false
	inline := "i"
	for _, flag := range strings.TrimSpace(line[next:]) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			inline += string(flag)
		default:
			return nil, fmt.Errorf("%w: unsupported flag %q", ErrSyntax, flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return expressionRule{re: re, replacement: replacement, global: global}, nil
}

func (r expressionRule) rewrite(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// scanDelimited reads up to the next unescaped delimiter. An escaped delimiter is unescaped;
// other escapes are kept for the regexp compiler.
func scanDelimited(line string, start int, delim byte) (string, int, error) {
	var b strings.Builder
	for i := start; i < len(line); i++ {
		c := line[i]
		if c == '\\' && i+1 < len(line) {
			if line[i+1] == delim {
				b.WriteByte(delim)
			} else {
				b.WriteByte(c)
				b.WriteByte(line[i+1])
			}
			i++
			continue
		}
		if c == delim {
			return b.String(), i + 1, nil
		}
		b.WriteByte(c)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == ' ' || c == '\t'
}
