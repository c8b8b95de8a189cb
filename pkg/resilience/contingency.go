package resilience

import "github.com/dutyroster/scheduler-core/pkg/domain"

// n2LargePopulationThreshold is the population size past which N-2 pair
// search is restricted to the caller's critical-faculty-only subset,
// per spec.md §4.5.
const n2LargePopulationThreshold = 20

// Vulnerability is one N-1 finding: a person whose simulated absence
// leaves blocks uncoverable.
type Vulnerability struct {
	PersonID         string
	Severity         string // "critical" (sole provider) or "high"
	AffectedBlocks   int
	IsUniqueProvider bool
}

// FatalPair is one N-2 finding: an ordered pair whose joint absence
// leaves blocks uncoverable. UncoverableBlocks also counts blocks that
// one of the two alone already leaves without a supervisor.
type FatalPair struct {
	Person1ID         string
	Person2ID         string
	UncoverableBlocks int
}

// ContingencyReport is the combined N-1/N-2 result for one assignment set.
type ContingencyReport struct {
	N1Pass            bool
	N1Vulnerabilities []Vulnerability
	N2Pass            bool
	N2FatalPairs      []FatalPair
}

func supervisorsByBlock(assignments []domain.Assignment) map[string][]string {
	out := make(map[string][]string)
	for _, a := range assignments {
		if a.Role == domain.RoleSupervising {
			out[a.BlockID] = append(out[a.BlockID], a.PersonID)
		}
	}
	return out
}

// AnalyzeN1 simulates, for each candidate person, the loss of every block
// they supervise and reports blocks left with no remaining supervisor.
// A person who is the sole supervisor for every block they cover is
// flagged as a unique provider (critical severity); otherwise high.
func AnalyzeN1(assignments []domain.Assignment, candidates []string) ContingencyReport {
	supervisors := supervisorsByBlock(assignments)

	var vulnerabilities []Vulnerability
	for _, personID := range candidates {
		var supervised, uncoverable int
		for blockID, sups := range supervisors {
			coversThis := false
			others := 0
			for _, s := range sups {
				if s == personID {
					coversThis = true
				} else {
					others++
				}
			}
			if !coversThis {
				continue
			}
			supervised++
			_ = blockID
			if others == 0 {
				uncoverable++
			}
		}
		if uncoverable == 0 {
			continue
		}
		vulnerabilities = append(vulnerabilities, Vulnerability{
			PersonID:         personID,
			Severity:         severityForUncoverable(uncoverable, supervised),
			AffectedBlocks:   uncoverable,
			IsUniqueProvider: uncoverable == supervised,
		})
	}

	return ContingencyReport{N1Pass: len(vulnerabilities) == 0, N1Vulnerabilities: vulnerabilities}
}

func severityForUncoverable(uncoverable, supervised int) string {
	if uncoverable == supervised && supervised > 0 {
		return "critical"
	}
	return "high"
}

// AnalyzeN2 iterates ordered pairs of candidate persons and reports fatal
// pairs: blocks a supervisor from the pair covers that have no remaining
// supervisor once both are removed. For populations larger than
// n2LargePopulationThreshold the search is restricted to
// criticalFacultyOnly rather than the full population.
func AnalyzeN2(assignments []domain.Assignment, population, criticalFacultyOnly []string) ContingencyReport {
	candidates := population
	if len(population) > n2LargePopulationThreshold {
		candidates = criticalFacultyOnly
	}
	supervisors := supervisorsByBlock(assignments)

	var pairs []FatalPair
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			p, q := candidates[i], candidates[j]
			uncoverable := n2UncoverableBlocks(supervisors, p, q)
			if uncoverable > 0 {
				pairs = append(pairs, FatalPair{Person1ID: p, Person2ID: q, UncoverableBlocks: uncoverable})
			}
		}
	}

	return ContingencyReport{N2Pass: len(pairs) == 0, N2FatalPairs: pairs}
}

func n2UncoverableBlocks(supervisors map[string][]string, p, q string) int {
	uncoverable := 0
	for _, sups := range supervisors {
		hadEither := false
		remaining := 0
		for _, s := range sups {
			if s == p || s == q {
				hadEither = true
			} else {
				remaining++
			}
		}
		if hadEither && remaining == 0 {
			uncoverable++
		}
	}
	return uncoverable
}

// CascadeResult is the outcome of simulating a seed failure's load
// propagating onto its neighbors.
type CascadeResult struct {
	SeedPersonID    string
	OverflowTargets map[string]float64 // personID -> resulting utilization
	LikelyCascade   bool
}

// SimulateCascade spreads seedLoad evenly across neighbors (by capacity
// key order is unspecified; only the resulting utilization figures and
// the likely-cascade flag are meaningful) and reports whether any
// neighbor crosses the black utilization band as a result, per spec.md
// §4.5's optional cascade simulation.
func SimulateCascade(seedPersonID string, seedLoad int, neighborCapacity, neighborCurrentLoad map[string]int) CascadeResult {
	result := CascadeResult{SeedPersonID: seedPersonID, OverflowTargets: make(map[string]float64)}
	if len(neighborCapacity) == 0 {
		return result
	}

	share := seedLoad / len(neighborCapacity)
	remainder := seedLoad % len(neighborCapacity)
	i := 0
	for id, capacity := range neighborCapacity {
		load := neighborCurrentLoad[id] + share
		if i < remainder {
			load++
		}
		i++
		if capacity <= 0 {
			continue
		}
		utilization := float64(load) / float64(capacity)
		result.OverflowTargets[id] = utilization
		if utilization >= thresholdBlack {
			result.LikelyCascade = true
		}
	}
	return result
}
