// Package vectorizer turns canonical symptom keys into the fixed-width binary
// feature vector the classifier was trained on.
package vectorizer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vocabulary"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
)

// FeatureVector has one 0/1 slot per vocabulary key.
type FeatureVector []float64

// Active returns the indices set to 1, ascending.
func (fv FeatureVector) Active() []int {
	var out []int
	for i, x := range fv {
		if x != 0 {
			out = append(out, i)
		}
	}
	return out
}

// Hash identifies the set of active indices.
func (fv FeatureVector) Hash() string {
	h := sha256.New()
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(fv)))
	h.Write(buf[:])
	for _, i := range fv.Active() {
		binary.BigEndian.PutUint32(buf[:], uint32(i))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

type Vectorizer struct {
	vocab *vocabulary.Vocabulary
}

func New(v *vocabulary.Vocabulary) *Vectorizer {
	return &Vectorizer{vocab: v}
}

// Width is the vector length.
func (z *Vectorizer) Width() int { return z.vocab.Len() }

// Vectorize sets the slot of each key. Keys outside the vocabulary are an
// invalid-input error; the normalizer never produces them.
func (z *Vectorizer) Vectorize(keys []string) (FeatureVector, error) {
	fv := make(FeatureVector, z.vocab.Len())
	for _, k := range keys {
		i, ok := z.vocab.Index(k)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown symptom key %q", k)
		}
		fv[i] = 1
	}
	return fv, nil
}
