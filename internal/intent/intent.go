package intent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Matcher 根据转写文本判断是否在对助手说话
type Matcher interface {
	Matches(text string) bool
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

type PatternConfig struct {
	Names     []string
	Greetings []string
	Cues      []string
	// AllowBareCue 允许不带名字、直接以疑问/请求词开头的句子
	AllowBareCue bool
}

// PatternMatcher 正则规则，任一命中即通过：
//  1. 以可选问候语 + 名字开头，后跟逗号或空白
//  2. 句中出现名字，其后任意位置出现请求词
//  3. 以请求词开头（AllowBareCue）
type PatternMatcher struct {
	patterns []*regexp.Regexp
}

func NewPatternMatcher(cfg PatternConfig) (*PatternMatcher, error) {
	if len(cfg.Names) == 0 {
		return nil, fmt.Errorf("intent: at least one assistant name is required")
	}
	names := alternation(cfg.Names)
	cues := alternation(cfg.Cues)

	var exprs []string
	if len(cfg.Greetings) > 0 {
		exprs = append(exprs, fmt.Sprintf(`^(%s)?\s*(%s)[,\s]`, alternation(cfg.Greetings), names))
	} else {
		exprs = append(exprs, fmt.Sprintf(`^(%s)[,\s]`, names))
	}
	if len(cfg.Cues) > 0 {
		exprs = append(exprs, fmt.Sprintf(`\b(%s)\b.*(%s)`, names, cues))
		if cfg.AllowBareCue {
			exprs = append(exprs, fmt.Sprintf(`^(%s)\b`, cues))
		}
	}

	m := &PatternMatcher{}
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("intent: compile %q: %w", expr, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func (m *PatternMatcher) Matches(text string) bool {
	text = normalize(text)
	if text == "" {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = normalize(w)
		if w == "" {
			continue
		}
		// 多词短语按任意空白匹配
		parts := strings.Fields(w)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		quoted = append(quoted, strings.Join(parts, `\s+`))
	}
	return strings.Join(quoted, "|")
}

// FuzzyMatcher 与唤醒短语做相似度比较，容忍识别误差
type FuzzyMatcher struct {
	phrases   [][]string
	threshold float64
}

func NewFuzzyMatcher(phrases []string, threshold float64) (*FuzzyMatcher, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("intent: fuzzy threshold must be in (0, 1], got %v", threshold)
	}
	m := &FuzzyMatcher{threshold: threshold}
	for _, p := range phrases {
		if p = normalize(p); p != "" {
			m.phrases = append(m.phrases, splitChars(p))
		}
	}
	if len(m.phrases) == 0 {
		return nil, fmt.Errorf("intent: at least one wake phrase is required")
	}
	return m, nil
}

func (m *FuzzyMatcher) Matches(text string) bool {
	text = normalize(text)
	if text == "" {
		return false
	}
	return m.BestRatio(text) > m.threshold
}

// BestRatio 返回与所有唤醒短语中最高的相似度（2*M/T）
func (m *FuzzyMatcher) BestRatio(text string) float64 {
	chars := splitChars(normalize(text))
	best := 0.0
	for _, phrase := range m.phrases {
		sm := difflib.NewMatcherWithJunk(chars, phrase, false, nil)
		if r := sm.Ratio(); r > best {
			best = r
		}
	}
	return best
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// AnyOf 任一策略命中即通过
type AnyOf []Matcher

func (a AnyOf) Matches(text string) bool {
	for _, m := range a {
		if m != nil && m.Matches(text) {
			return true
		}
	}
	return false
}

// MatcherFunc 适配普通函数
type MatcherFunc func(text string) bool

func (f MatcherFunc) Matches(text string) bool { return f(text) }
