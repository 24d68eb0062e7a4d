package pipeline

import (
	"slices"
	"sort"
	"time"
)

// ProfileTimestampIndex groups event timestamps by profile for interval
// statistics.
type ProfileTimestampIndex map[string][]time.Time

func (ix ProfileTimestampIndex) Add(profileID string, t time.Time) {
	ix[profileID] = append(ix[profileID], t)
}

// Profiles is the number of distinct profiles indexed.
func (ix ProfileTimestampIndex) Profiles() int {
	return len(ix)
}

// Intervals returns the gaps in hours between consecutive timestamps of each
// profile, pooled across all profiles. Profiles are visited in id order so
// the result is deterministic.
func (ix ProfileTimestampIndex) Intervals() []float64 {
	profiles := make([]string, 0, len(ix))
	for p := range ix {
		profiles = append(profiles, p)
	}
	sort.Strings(profiles)

	var out []float64
	for _, p := range profiles {
		times := slices.Clone(ix[p])
		if len(times) < 2 {
			continue
		}
		slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })
		for i := 1; i < len(times); i++ {
			out = append(out, times[i].Sub(times[i-1]).Hours())
		}
	}
	return out
}

// AverageIntervalHours is the mean of Intervals, weighting every interval
// equally regardless of which profile produced it. 0 when no profile has two
// timestamps.
func (ix ProfileTimestampIndex) AverageIntervalHours() float64 {
	return mean(ix.Intervals())
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
