// Package normalizer maps free-form symptom strings onto canonical vocabulary
// keys. Each raw token is tried against four strategies in order and the
// first hit wins:
//
//  1. vocabulary: exact key, or exact match after case folding, trimming and
//     treating underscores as spaces
//  2. index: exact match against the pre-built variant index
//  3. word: each word longer than three characters, left to right
//  4. substring: first index entry (build order) where either string
//     contains the other; these matches are logged and flagged
//
// Tokens that match nothing are dropped. The index is built once and only
// read afterwards, so a Normalizer is safe for concurrent use.
package normalizer

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
)

// minWordLen is the exclusive lower bound on significant word length.
const minWordLen = 3

type Strategy string

const (
	StrategyVocabulary Strategy = "vocabulary"
	StrategyIndex      Strategy = "index"
	StrategyWord       Strategy = "word"
	StrategySubstring  Strategy = "substring"
	StrategyUnmatched  Strategy = "unmatched"
)

// Match records how one raw token resolved.
type Match struct {
	Raw      string   `json:"raw"`
	Key      string   `json:"key"`
	Strategy Strategy `json:"strategy"`
}

// Result is the outcome of normalizing one request's tokens.
type Result struct {
	// Keys are the distinct canonical keys in first-seen order.
	Keys      []string
	Matches   []Match
	Unmatched []string
}

// Empty reports whether no token matched.
func (r Result) Empty() bool { return len(r.Keys) == 0 }

// Flagged returns the substring-strategy matches, which may be unintended.
func (r Result) Flagged() []Match {
	var out []Match
	for _, m := range r.Matches {
		if m.Strategy == StrategySubstring {
			out = append(out, m)
		}
	}
	return out
}

type variantKind int

const (
	variantFull variantKind = iota
	variantWord
)

type entry struct {
	variant string
	key     string
	kind    variantKind
}

// Normalizer resolves raw tokens against an immutable index.
type Normalizer struct {
	exact   map[string]string
	folded  map[string]string
	lookup  map[string]int
	entries []entry
	metrics *metrics.Metrics
}

// New builds the normalization index from v. m may be nil.
//
// Variants are inserted per key in vocabulary order: the cleaned form, the
// underscore form, then each word longer than three characters. An existing
// variant is never replaced, except that a full form takes over a slot
// previously claimed by a bare word of an earlier key.
func New(v *vocabulary.Vocabulary, m *metrics.Metrics) *Normalizer {
	n := &Normalizer{
		exact:   make(map[string]string, v.Len()),
		folded:  make(map[string]string, v.Len()),
		lookup:  make(map[string]int, v.Len()*3),
		metrics: m,
	}
	for _, key := range v.Keys() {
		n.exact[key] = key
		clean := Clean(key)
		if _, ok := n.folded[clean]; !ok {
			n.folded[clean] = key
		}
		n.insert(clean, key, variantFull)
		n.insert(strings.ReplaceAll(clean, " ", "_"), key, variantFull)
		for _, w := range strings.Fields(clean) {
			if significant(w) {
				n.insert(w, key, variantWord)
			}
		}
	}
	return n
}

func (n *Normalizer) insert(variant, key string, kind variantKind) {
	if variant == "" {
		return
	}
	if i, ok := n.lookup[variant]; ok {
		if kind == variantFull && n.entries[i].kind == variantWord {
			n.entries[i] = entry{variant: variant, key: key, kind: kind}
		}
		return
	}
	n.lookup[variant] = len(n.entries)
	n.entries = append(n.entries, entry{variant: variant, key: key, kind: kind})
}

// Size is the number of indexed variants.
func (n *Normalizer) Size() int { return len(n.entries) }

// Clean folds a token into the comparison form: NFKC, trimmed, lower-cased,
// underscores as spaces, runs of whitespace collapsed to one space.
func Clean(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

func significant(word string) bool {
	return utf8.RuneCountInString(word) > minWordLen
}

// Normalize resolves each raw token. It never fails; unmatched tokens are
// reported in Result.Unmatched.
func (n *Normalizer) Normalize(ctx context.Context, raw []string) Result {
	log := logger.FromContext(ctx).With("component", "normalizer")
	res := Result{Keys: make([]string, 0, len(raw))}
	seen := make(map[string]struct{}, len(raw))
	for _, tok := range raw {
		key, strategy := n.resolve(tok)
		n.observe(strategy)
		if strategy == StrategyUnmatched {
			if strings.TrimSpace(tok) != "" {
				res.Unmatched = append(res.Unmatched, tok)
			}
			continue
		}
		if strategy == StrategySubstring {
			log.Warn("symptom matched by substring", "raw", tok, "key", key)
		}
		res.Matches = append(res.Matches, Match{Raw: tok, Key: key, Strategy: strategy})
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		res.Keys = append(res.Keys, key)
	}
	log.Debug("normalized symptoms", "raw", len(raw), "matched", len(res.Keys), "unmatched", len(res.Unmatched))
	return res
}

// Resolve returns the canonical key for a single token and the strategy that
// found it, or ("", StrategyUnmatched).
func (n *Normalizer) Resolve(tok string) (string, Strategy) {
	return n.resolve(tok)
}

func (n *Normalizer) resolve(tok string) (string, Strategy) {
	if key, ok := n.exact[strings.TrimSpace(tok)]; ok {
		return key, StrategyVocabulary
	}
	clean := Clean(tok)
	if clean == "" {
		return "", StrategyUnmatched
	}
	if key, ok := n.folded[clean]; ok {
		return key, StrategyVocabulary
	}
	if i, ok := n.lookup[clean]; ok {
		return n.entries[i].key, StrategyIndex
	}
	if i, ok := n.lookup[strings.ReplaceAll(clean, " ", "_")]; ok {
		return n.entries[i].key, StrategyIndex
	}
	for _, w := range strings.Fields(clean) {
		if !significant(w) {
			continue
		}
		if i, ok := n.lookup[w]; ok {
			return n.entries[i].key, StrategyWord
		}
	}
	for _, e := range n.entries {
		if strings.Contains(e.variant, clean) || strings.Contains(clean, e.variant) {
			return e.key, StrategySubstring
		}
	}
	return "", StrategyUnmatched
}

func (n *Normalizer) observe(s Strategy) {
	if n.metrics == nil {
		return
	}
	n.metrics.NormalizerMatches.WithLabelValues(string(s)).Inc()
}
