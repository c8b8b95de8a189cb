// Package mutation is the Post-publication Mutation Engine: swap
// matching and execution against a published schedule, and the
// proxy-coverage read-side view. It never re-enters the generator loop;
// a caller that wants re-optimization after a mutation requests it
// explicitly.
package mutation

import (
	"sort"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/domain"
	sharedmath "github.com/dutyroster/scheduler-core/pkg/shared/math"
)

// MatchingCriteria tunes the compatibility scorer and the candidate
// filter. Zero value is not usable; use DefaultMatchingCriteria.
type MatchingCriteria struct {
	MaxDateSeparationDays int
	MinimumScoreThreshold float64
}

// DefaultMatchingCriteria mirrors the original's defaults: a two-week
// window and a 0.5 minimum score.
func DefaultMatchingCriteria() MatchingCriteria {
	return MatchingCriteria{MaxDateSeparationDays: 14, MinimumScoreThreshold: 0.5}
}

// EquityProfile summarizes one person's current call-count split,
// feeding the equity-impact component of compatibility scoring.
type EquityProfile struct {
	SundayCallCount  int
	WeekdayCallCount int
}

// BuildEquityProfiles derives an EquityProfile per person from their
// primary-role assignments.
func BuildEquityProfiles(assignments []domain.Assignment, blocks map[string]domain.Block) map[string]EquityProfile {
	profiles := make(map[string]EquityProfile)
	for _, a := range assignments {
		if a.Role != domain.RolePrimary {
			continue
		}
		block, ok := blocks[a.BlockID]
		if !ok {
			continue
		}
		p := profiles[a.PersonID]
		if block.Date.Weekday() == time.Sunday {
			p.SundayCallCount++
		} else {
			p.WeekdayCallCount++
		}
		profiles[a.PersonID] = p
	}
	return profiles
}

// RankedMatch is one candidate swap scored against a target swap.
type RankedMatch struct {
	Match              domain.Swap
	CompatibilityScore float64
	HighPriority       bool
}

// ScoreCompatibility scores target against candidate on four components
// — date proximity, symmetric coverage, training-year compatibility, and
// equity impact — each in [0,1], averaged. dateProximity is 0 past
// criteria.MaxDateSeparationDays and scales linearly inside it.
// Symmetric coverage rewards a candidate whose target week falls near
// the requester's source week (a true one-for-one exchange) over a pure
// absorb. Training-year compatibility is 1 for an exact match, 0.5 for
// adjacent years, 0 otherwise (faculty, TrainingYearNone, always match
// at 1). Equity impact uses cosine similarity of each side's
// [sunday, weekday] call-count vector: two similarly-loaded people swap
// without widening the gap between them.
func ScoreCompatibility(target, candidate domain.Swap, persons map[string]domain.Person, profiles map[string]EquityProfile, criteria MatchingCriteria) float64 {
	dateProximity := dateProximityScore(target, candidate, criteria.MaxDateSeparationDays)
	coverage := symmetricCoverageScore(target, candidate)
	trainingYear := trainingYearScore(target, candidate, persons)
	equity := equityImpactScore(target, candidate, profiles)

	return (dateProximity + coverage + trainingYear + equity) / 4
}

func dateProximityScore(target, candidate domain.Swap, maxSeparationDays int) float64 {
	if maxSeparationDays <= 0 {
		maxSeparationDays = 1
	}
	separation := absDays(target.SourceWeek, candidate.SourceWeek)
	if separation > maxSeparationDays {
		return 0
	}
	return 1 - float64(separation)/float64(maxSeparationDays)
}

func absDays(a, b time.Time) int {
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// symmetricCoverageScore rewards a candidate whose target week matches
// the requester's source week (or vice versa) — a clean week-for-week
// exchange — over an absorb that leaves one side's calendar untouched.
func symmetricCoverageScore(target, candidate domain.Swap) float64 {
	if target.Kind != domain.SwapOneToOne || candidate.Kind != domain.SwapOneToOne {
		return 0.5
	}
	if !candidate.TargetWeek.IsZero() && candidate.TargetWeek.Equal(target.SourceWeek) {
		return 1
	}
	if !target.TargetWeek.IsZero() && target.TargetWeek.Equal(candidate.SourceWeek) {
		return 1
	}
	return 0.5
}

func trainingYearScore(target, candidate domain.Swap, persons map[string]domain.Person) float64 {
	a, okA := persons[target.SourcePersonID]
	b, okB := persons[candidate.SourcePersonID]
	if !okA || !okB || !a.IsResident() || !b.IsResident() {
		return 1
	}
	diff := a.TrainingYear - b.TrainingYear
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return 1
	case 1:
		return 0.5
	default:
		return 0
	}
}

func equityImpactScore(target, candidate domain.Swap, profiles map[string]EquityProfile) float64 {
	a := profiles[target.SourcePersonID]
	b := profiles[candidate.SourcePersonID]
	va := []float64{float64(a.SundayCallCount), float64(a.WeekdayCallCount)}
	vb := []float64{float64(b.SundayCallCount), float64(b.WeekdayCallCount)}
	similarity := sharedmath.CosineSimilarity(va, vb)
	if similarity < 0 {
		similarity = 0
	}
	return similarity
}

// FindCompatibleSwaps scores target against every other pending swap
// and returns those at or above criteria.MinimumScoreThreshold, highest
// score first.
func FindCompatibleSwaps(target domain.Swap, pending []domain.Swap, persons map[string]domain.Person, profiles map[string]EquityProfile, criteria MatchingCriteria) []RankedMatch {
	var matches []RankedMatch
	for _, candidate := range pending {
		if candidate.ID == target.ID || candidate.Status != domain.SwapPending {
			continue
		}
		score := ScoreCompatibility(target, candidate, persons, profiles, criteria)
		if score < criteria.MinimumScoreThreshold {
			continue
		}
		matches = append(matches, RankedMatch{
			Match:              candidate,
			CompatibilityScore: score,
			HighPriority:       score >= 0.9,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CompatibilityScore > matches[j].CompatibilityScore
	})
	return matches
}

// SuggestOptimalMatches is FindCompatibleSwaps truncated to the top_k
// ranked matches.
func SuggestOptimalMatches(target domain.Swap, pending []domain.Swap, persons map[string]domain.Person, profiles map[string]EquityProfile, criteria MatchingCriteria, topK int) []RankedMatch {
	matches := FindCompatibleSwaps(target, pending, persons, profiles, criteria)
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// AutoMatchResult is the outcome of one auto-match pass over every
// pending swap.
type AutoMatchResult struct {
	TotalRequestsProcessed int
	SuccessfulMatches      []RankedMatch
	NoMatches              []domain.Swap
	HighPriorityMatches    []RankedMatch
	ExecutionTime          time.Duration
}

// AutoMatchPendingRequests processes every pending swap in a single
// pass, pairing each with its best compatible candidate (a candidate
// already claimed by an earlier, higher-scoring pairing is not reused).
func AutoMatchPendingRequests(pending []domain.Swap, persons map[string]domain.Person, profiles map[string]EquityProfile, criteria MatchingCriteria, elapsed time.Duration) AutoMatchResult {
	result := AutoMatchResult{ExecutionTime: elapsed}

	var candidates []domain.Swap
	for _, s := range pending {
		if s.Status == domain.SwapPending {
			candidates = append(candidates, s)
		}
	}
	result.TotalRequestsProcessed = len(candidates)

	claimed := make(map[string]bool)
	for _, target := range candidates {
		if claimed[target.ID] {
			continue
		}
		matches := FindCompatibleSwaps(target, candidates, persons, profiles, criteria)
		var best *RankedMatch
		for i := range matches {
			if !claimed[matches[i].Match.ID] {
				best = &matches[i]
				break
			}
		}
		if best == nil {
			result.NoMatches = append(result.NoMatches, target)
			continue
		}
		claimed[target.ID] = true
		claimed[best.Match.ID] = true
		result.SuccessfulMatches = append(result.SuccessfulMatches, *best)
		if best.HighPriority {
			result.HighPriorityMatches = append(result.HighPriorityMatches, *best)
		}
	}

	return result
}
