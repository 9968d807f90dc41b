package device

import "strings"

// defaultResolveThreshold is the minimum similarity a fuzzy candidate must
// reach to be returned. Tuned so a single-character typo in a typical
// device name still resolves while unrelated strings do not.
const defaultResolveThreshold = 0.6

// MatchType tags how a Resolve query matched a device.
type MatchType string

// Match type constants.
const (
	// MatchExact means the query equalled the device id or name
	// (names compare case-insensitively).
	MatchExact MatchType = "exact"

	// MatchAlias means the query equalled the device alias.
	MatchAlias MatchType = "alias"

	// MatchFuzzy means the query was close enough to a name or alias
	// under normalized edit distance.
	MatchFuzzy MatchType = "fuzzy"
)

// Match is the result of resolving a natural-language device query.
type Match struct {
	Device     Device    `json:"device"`
	Type       MatchType `json:"type"`
	Confidence float64   `json:"confidence"`
}

// Resolve finds the device best matching a free-form query.
//
// Resolution is three-tier:
//  1. exact id match
//  2. exact case-insensitive name (→ exact) or alias (→ alias) match
//  3. fuzzy similarity against all names and aliases; the top candidate
//     is returned when its confidence clears the acceptance threshold
//
// Returns ErrNoMatch when nothing clears the threshold.
func (r *Registry) Resolve(query string) (*Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoMatch
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Tier 1: exact id.
	if d, ok := r.devices[query]; ok {
		return &Match{Device: *d.DeepCopy(), Type: MatchExact, Confidence: 1}, nil
	}

	// Tier 2: exact name or alias, case-insensitive.
	lowered := strings.ToLower(query)
	for _, d := range r.devices {
		if strings.ToLower(d.Name) == lowered {
			return &Match{Device: *d.DeepCopy(), Type: MatchExact, Confidence: 1}, nil
		}
	}
	for _, d := range r.devices {
		if d.Alias != nil && strings.ToLower(*d.Alias) == lowered {
			return &Match{Device: *d.DeepCopy(), Type: MatchAlias, Confidence: 1}, nil
		}
	}

	// Tier 3: fuzzy similarity over names and aliases.
	var (
		best      *Device
		bestScore float64
	)
	for _, d := range r.devices {
		score := similarity(lowered, strings.ToLower(d.Name))
		if d.Alias != nil {
			if s := similarity(lowered, strings.ToLower(*d.Alias)); s > score {
				score = s
			}
		}
		if score > bestScore {
			best = d
			bestScore = score
		}
	}

	if best == nil || bestScore < r.threshold {
		return nil, ErrNoMatch
	}
	return &Match{Device: *best.DeepCopy(), Type: MatchFuzzy, Confidence: bestScore}, nil
}

// similarity computes a normalized edit-distance similarity in [0, 1]:
// 1 for identical strings, falling towards 0 as edits accumulate.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	ra := []rune(a)
	rb := []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}

	dist := levenshtein(ra, rb)
	return 1 - float64(dist)/float64(longest)
}

// levenshtein computes edit distance with the classic two-row dynamic
// programme; O(len(a)·len(b)) time, O(len(b)) space.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
