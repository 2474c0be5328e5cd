package impact

import (
	"fmt"
	"sort"
	"sync"
)

// GapKind classifies a recoverable lookup miss.
type GapKind string

const (
	// GapNoVscore is a missing (activity, stressor, habitat code) vulnerability score.
	GapNoVscore GapKind = "no_vscore"
	// GapNoFishingScore is a missing or zero fishing gear score tolerated
	// under lenient gear scoring.
	GapNoFishingScore GapKind = "no_fishing_score"
)

// Gap is one deficiency reported at the end of a run.
type Gap struct {
	Kind        GapKind `json:"kind"`
	Activity    string  `json:"activity"`
	Stressor    string  `json:"stressor"`
	HabitatCode string  `json:"habitat_code,omitempty"`
}

func (g Gap) String() string {
	if g.HabitatCode == "" {
		return fmt.Sprintf("%s: %s/%s", g.Kind, g.Activity, g.Stressor)
	}
	return fmt.Sprintf("%s: %s/%s/%s", g.Kind, g.Activity, g.Stressor, g.HabitatCode)
}

// GapReport is a deduplicated, concurrency-safe list of gaps.
type GapReport struct {
	mu   sync.Mutex
	seen map[Gap]struct{}
	gaps []Gap
}

// NewGapReport creates an empty report.
func NewGapReport() *GapReport {
	return &GapReport{seen: make(map[Gap]struct{})}
}

// Add records g; it returns false when g was already present.
func (r *GapReport) Add(g Gap) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[g]; ok {
		return false
	}
	r.seen[g] = struct{}{}
	r.gaps = append(r.gaps, g)
	return true
}

// Merge adds every gap of other.
func (r *GapReport) Merge(other *GapReport) {
	if other == nil {
		return
	}
	for _, g := range other.Gaps() {
		r.Add(g)
	}
}

// Len returns the number of distinct gaps.
func (r *GapReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gaps)
}

// Gaps returns the gaps sorted by kind, activity, stressor and habitat code.
func (r *GapReport) Gaps() []Gap {
	r.mu.Lock()
	out := append([]Gap(nil), r.gaps...)
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Activity != b.Activity {
			return a.Activity < b.Activity
		}
		if a.Stressor != b.Stressor {
			return a.Stressor < b.Stressor
		}
		return a.HabitatCode < b.HabitatCode
	})
	return out
}

// ByKind returns the gaps of one kind.
func (r *GapReport) ByKind(kind GapKind) []Gap {
	var out []Gap
	for _, g := range r.Gaps() {
		if g.Kind == kind {
			out = append(out, g)
		}
	}
	return out
}
