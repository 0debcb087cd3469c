package validate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrRejected marks a payload whose identifiers could not be reconciled with
// the allowlist at sufficient confidence.
var ErrRejected = errors.New("payload rejected by allowlist")

// DefaultMinConfidence is the similarity floor below which an unknown
// identifier fails the payload instead of being substituted.
const DefaultMinConfidence = 0.72

// Allowlist constrains a named identifier field anywhere in a payload to a
// known set, substituting near-misses from the model with their closest
// canonical spelling.
type Allowlist struct {
	// Field is the JSON key holding identifiers (e.g. "exercise_id").
	Field string
	// Allowed is the canonical identifier set.
	Allowed []string
	// MinConfidence overrides DefaultMinConfidence when > 0.
	MinConfidence float64
}

// NewAllowlistFromFile builds an allowlist for field from a file of
// newline-separated identifiers. Blank lines and lines starting with # are
// skipped.
func NewAllowlistFromFile(field, path string) (*Allowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allowlist %s: %w", path, err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("allowlist %s contains no identifiers", path)
	}
	return &Allowlist{Field: field, Allowed: ids}, nil
}

// Apply rewrites unknown identifiers in payload to their nearest allowed
// match. When any substitution falls below the confidence floor the whole
// payload is rejected with ErrRejected so the caller retries.
func (a *Allowlist) Apply(payload []byte) ([]byte, error) {
	if a == nil || a.Field == "" || len(a.Allowed) == 0 {
		return payload, nil
	}
	minConf := a.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}

	allowed := make(map[string]struct{}, len(a.Allowed))
	for _, id := range a.Allowed {
		allowed[id] = struct{}{}
	}

	var refs []fieldRef
	collectFieldRefs(gjson.ParseBytes(payload), "", a.Field, &refs)

	out := payload
	for _, ref := range refs {
		if _, ok := allowed[ref.value]; ok {
			continue
		}
		best, conf := nearestMatch(ref.value, a.Allowed)
		if conf < minConf {
			return nil, fmt.Errorf("unknown identifier %q (best match %q at %.2f): %w", ref.value, best, conf, ErrRejected)
		}
		var err error
		out, err = sjson.SetBytes(out, ref.path, best)
		if err != nil {
			return nil, fmt.Errorf("substitute %q at %s: %w", ref.value, ref.path, err)
		}
	}
	return out, nil
}

type fieldRef struct {
	path  string
	value string
}

// collectFieldRefs walks the document recording the gjson/sjson path of every
// string value stored under the target key.
func collectFieldRefs(v gjson.Result, prefix, field string, out *[]fieldRef) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, val gjson.Result) bool {
			p := joinPath(prefix, escapePathKey(key.String()))
			if key.String() == field && val.Type == gjson.String {
				*out = append(*out, fieldRef{path: p, value: val.String()})
				return true
			}
			collectFieldRefs(val, p, field, out)
			return true
		})
	case v.IsArray():
		for i, elem := range v.Array() {
			collectFieldRefs(elem, joinPath(prefix, fmt.Sprintf("%d", i)), field, out)
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func escapePathKey(key string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return replacer.Replace(key)
}

// nearestMatch returns the allowed identifier with the highest normalized
// Levenshtein similarity to candidate. Comparison is case-insensitive; the
// canonical spelling is what gets substituted.
func nearestMatch(candidate string, allowed []string) (string, float64) {
	best := ""
	bestScore := -1.0
	lc := strings.ToLower(candidate)
	for _, id := range allowed {
		score := levenshtein.Similarity(lc, strings.ToLower(id), nil)
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	return best, bestScore
}
