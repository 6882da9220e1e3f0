package quiz

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

type shapeError struct{ msg string }

func (e *shapeError) Error() string { return e.msg }

// Strategy grades one question type.
type Strategy interface {
	Grade(q Question, response any) (float64, []string, error)
}

// Grader routes each question to the Strategy registered for its type.
type Grader struct {
	strategies map[string]Strategy
}

type Opt func(*options)

type options struct {
	maxEditDistance int
	partialMulti    bool
}

func WithMaxEditDistance(n int) Opt { return func(o *options) { o.maxEditDistance = n } }
func WithPartialMulti(b bool) Opt   { return func(o *options) { o.partialMulti = b } }

func NewGrader(opts ...Opt) *Grader {
	o := &options{maxEditDistance: 1, partialMulti: true}
	for _, fn := range opts {
		fn(o)
	}
	return &Grader{strategies: map[string]Strategy{
		TypeSingle:    singleStrategy{},
		TypeTrueFalse: singleStrategy{},
		TypeMulti:     multiStrategy{partial: o.partialMulti},
		TypeShortWord: shortWordStrategy{maxEdit: o.maxEditDistance},
		TypeNumeric:   numericStrategy{},
	}}
}

func (g *Grader) grade(q Question, resp any) (float64, []string, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return 0, []string{"no strategy for " + q.Type}, nil
	}
	return s.Grade(q, resp)
}

type singleStrategy struct{}

func (singleStrategy) Grade(q Question, response any) (float64, []string, error) {
	resp, ok := asString(response)
	if !ok {
		return 0, nil, &shapeError{"response must be a string"}
	}
	for _, k := range q.AnswerKey {
		if strings.EqualFold(resp, k) {
			return q.Points, nil, nil
		}
	}
	return 0, nil, nil
}

// multiStrategy gives full points for the exact set and, when partial is
// set, proportional credit for a subset without wrong picks.
type multiStrategy struct{ partial bool }

func (s multiStrategy) Grade(q Question, response any) (float64, []string, error) {
	picks, ok := toStringSlice(response)
	if !ok {
		return 0, nil, &shapeError{"response must be a list of option ids"}
	}
	correct := toSet(q.AnswerKey)
	got := toSet(picks)
	hits := 0
	for k := range got {
		if _, ok := correct[k]; !ok {
			return 0, []string{"includes an incorrect option"}, nil
		}
		hits++
	}
	if hits == len(correct) {
		return q.Points, nil, nil
	}
	if s.partial && len(correct) > 0 {
		return q.Points * float64(hits) / float64(len(correct)), []string{"partially correct"}, nil
	}
	return 0, nil, nil
}

type shortWordStrategy struct{ maxEdit int }

func (s shortWordStrategy) Grade(q Question, response any) (float64, []string, error) {
	resp, ok := asString(response)
	if !ok {
		return 0, nil, &shapeError{"response must be a string"}
	}
	norm := normalize(resp)
	near := false
	for _, k := range q.AnswerKey {
		nk := normalize(k)
		if nk == norm {
			return q.Points, nil, nil
		}
		if s.maxEdit > 0 && levenshtein(nk, norm) <= s.maxEdit {
			near = true
		}
	}
	if near {
		return q.Points * 0.5, []string{"close match"}, nil
	}
	return 0, nil, nil
}

// numericStrategy compares against AnswerKey[0]. Further entries may set
// "tol=<abs>" or "reltol=<fraction>".
type numericStrategy struct{}

func (numericStrategy) Grade(q Question, response any) (float64, []string, error) {
	var v float64
	switch r := response.(type) {
	case float64:
		v = r
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return 0, nil, &shapeError{"response must be a number"}
		}
		v = f
	default:
		return 0, nil, &shapeError{"response must be a number"}
	}
	target, err := strconv.ParseFloat(strings.TrimSpace(q.AnswerKey[0]), 64)
	if err != nil {
		return 0, []string{"answer key is not numeric"}, nil
	}
	abs, rel := 0.0, -1.0
	for _, k := range q.AnswerKey[1:] {
		k = strings.ToLower(strings.TrimSpace(k))
		if t, ok := strings.CutPrefix(k, "tol="); ok {
			abs, _ = strconv.ParseFloat(t, 64)
		}
		if t, ok := strings.CutPrefix(k, "reltol="); ok {
			rel, _ = strconv.ParseFloat(t, 64)
		}
	}
	diff := math.Abs(v - target)
	if diff <= abs || (rel >= 0 && diff <= rel*math.Abs(target)) {
		return q.Points, nil, nil
	}
	return 0, nil, nil
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

// normalize lower-cases, drops punctuation and collapses whitespace.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}
	dp := make([]int, len(br)+1)
	for j := range dp {
		dp[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= len(br); j++ {
			tmp := dp[j]
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			dp[j] = min(dp[j]+1, dp[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return dp[len(br)]
}
