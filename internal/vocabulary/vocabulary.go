// Package vocabulary holds the classifier's fixed symptom vocabulary and
// disease labels. A Vocabulary is loaded once at startup and never mutated.
package vocabulary

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
)

// Mappings is the on-disk vocabulary format. JSON files parse as well since
// YAML is a superset.
type Mappings struct {
	SymptomToIdx map[string]int    `yaml:"symptom_to_idx"`
	IdxToDisease map[string]string `yaml:"idx_to_disease"`
}

// Vocabulary is the immutable symptom and disease catalogue.
type Vocabulary struct {
	keys        []string
	index       map[string]int
	diseases    []string
	diseaseSet  map[string]struct{}
	fingerprint string
}

// Load reads a mappings file. Any failure is a configuration error.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, http.StatusInternalServerError,
			"reading vocabulary %s: %v", path, err)
	}
	var m Mappings
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, http.StatusInternalServerError,
			"parsing vocabulary %s: %v", path, err)
	}
	return New(m)
}

// New validates m and builds a Vocabulary. Symptom indices and disease
// indices must each be dense from 0. Keys are trimmed of surrounding
// whitespace; disease labels are title-cased.
func New(m Mappings) (*Vocabulary, error) {
	if len(m.SymptomToIdx) == 0 {
		return nil, configErr("vocabulary has no symptoms")
	}
	if len(m.IdxToDisease) == 0 {
		return nil, configErr("vocabulary has no diseases")
	}

	keys := make([]string, len(m.SymptomToIdx))
	index := make(map[string]int, len(m.SymptomToIdx))
	for raw, idx := range m.SymptomToIdx {
		key := strings.TrimSpace(raw)
		if key == "" {
			return nil, configErr("empty symptom key at index %d", idx)
		}
		if idx < 0 || idx >= len(keys) {
			return nil, configErr("symptom %q has index %d outside [0,%d)", key, idx, len(keys))
		}
		if keys[idx] != "" {
			return nil, configErr("symptoms %q and %q share index %d", keys[idx], key, idx)
		}
		if prev, dup := index[key]; dup {
			return nil, configErr("symptom %q listed twice (indices %d and %d)", key, prev, idx)
		}
		keys[idx] = key
		index[key] = idx
	}

	diseases := make([]string, len(m.IdxToDisease))
	caser := cases.Title(language.English)
	for rawIdx, name := range m.IdxToDisease {
		idx, err := strconv.Atoi(strings.TrimSpace(rawIdx))
		if err != nil {
			return nil, configErr("disease index %q is not an integer", rawIdx)
		}
		if idx < 0 || idx >= len(diseases) {
			return nil, configErr("disease %q has index %d outside [0,%d)", name, idx, len(diseases))
		}
		label := caser.String(strings.TrimSpace(name))
		if label == "" {
			return nil, configErr("empty disease label at index %d", idx)
		}
		diseases[idx] = label
	}

	set := make(map[string]struct{}, len(diseases))
	for _, d := range diseases {
		set[strings.ToLower(d)] = struct{}{}
	}

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	h.Write([]byte{1})
	for _, d := range diseases {
		h.Write([]byte(d))
		h.Write([]byte{0})
	}

	return &Vocabulary{
		keys:        keys,
		index:       index,
		diseases:    diseases,
		diseaseSet:  set,
		fingerprint: hex.EncodeToString(h.Sum(nil))[:16],
	}, nil
}

func configErr(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrConfiguration, http.StatusInternalServerError, format, args...)
}

// Len is the feature vector width.
func (v *Vocabulary) Len() int { return len(v.keys) }

// Keys returns the canonical symptom keys ordered by index.
func (v *Vocabulary) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Key returns the canonical key at index i.
func (v *Vocabulary) Key(i int) string { return v.keys[i] }

// Index returns the feature index of a canonical key.
func (v *Vocabulary) Index(key string) (int, bool) {
	i, ok := v.index[key]
	return i, ok
}

// NumClasses is the number of disease labels the classifier scores.
func (v *Vocabulary) NumClasses() int { return len(v.diseases) }

// Disease returns the display label for class index i.
func (v *Vocabulary) Disease(i int) string { return v.diseases[i] }

// Diseases returns all display labels ordered by class index.
func (v *Vocabulary) Diseases() []string {
	out := make([]string, len(v.diseases))
	copy(out, v.diseases)
	return out
}

// IsDisease reports whether name is a known label, ignoring case.
func (v *Vocabulary) IsDisease(name string) bool {
	_, ok := v.diseaseSet[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Fingerprint identifies this exact vocabulary; cached predictions are
// namespaced by it.
func (v *Vocabulary) Fingerprint() string { return v.fingerprint }

// Sorted returns the canonical keys in lexical order, for catalogue listings.
func (v *Vocabulary) Sorted() []string {
	out := v.Keys()
	sort.Strings(out)
	return out
}

// String implements fmt.Stringer.
func (v *Vocabulary) String() string {
	return fmt.Sprintf("vocabulary(%d symptoms, %d diseases, %s)", len(v.keys), len(v.diseases), v.fingerprint)
}
