// Package evaluator turns a Constraint Engine Report into a scored
// domain.EvaluationResult: the weighted-deficit score, the ten most-severe
// violations, and summary workload-balance metrics.
package evaluator

import (
	"sort"

	"github.com/dutyroster/scheduler-core/pkg/constraints"
	"github.com/dutyroster/scheduler-core/pkg/domain"
	sharedmath "github.com/dutyroster/scheduler-core/pkg/shared/math"
)

// maxTopViolations bounds how many violations an EvaluationResult carries
// verbatim.
const maxTopViolations = 10

// Score computes the weighted-deficit score in [0,1]:
// clamp(1 - Σ w(severity)·count / denominator, 0, 1).
func Score(counts map[domain.Severity]int, expectedAssignments int) float64 {
	denominator := float64(expectedAssignments)
	if denominator < 1 {
		denominator = 1
	}

	var deficit float64
	for severity, count := range counts {
		deficit += domain.SeverityWeight(severity) * float64(count)
	}

	score := 1 - deficit/denominator
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// WorkloadMetrics summarizes equity across a period's per-person call
// counts: the coefficient of variation and the max-min gap.
func WorkloadMetrics(callCounts map[string]int) domain.WorkloadMetrics {
	if len(callCounts) == 0 {
		return domain.WorkloadMetrics{}
	}

	values := make([]float64, 0, len(callCounts))
	var min, max int
	first := true
	for _, c := range callCounts {
		values = append(values, float64(c))
		if first {
			min, max = c, c
			first = false
			continue
		}
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}

	return domain.WorkloadMetrics{
		CoefficientOfVariation: sharedmath.CoefficientOfVariation(values),
		CallCountGap:           max - min,
	}
}

// Evaluate converts a Constraint Engine Report into a scored
// domain.EvaluationResult.
func Evaluate(report constraints.Report, expectedAssignments int, callCounts map[string]int) domain.EvaluationResult {
	top := make([]domain.Violation, len(report.Violations))
	copy(top, report.Violations)
	sort.SliceStable(top, func(i, j int) bool {
		return severityRank(top[i].Severity) < severityRank(top[j].Severity)
	})
	if len(top) > maxTopViolations {
		top = top[:maxTopViolations]
	}

	warnings := make([]string, 0, len(report.Warnings))
	for _, w := range report.Warnings {
		warnings = append(warnings, w.Message)
	}

	return domain.EvaluationResult{
		Score:           Score(report.ViolationCounts, expectedAssignments),
		Valid:           report.Valid,
		ViolationCounts: report.ViolationCounts,
		TopViolations:   top,
		Warnings:        warnings,
		Metrics:         WorkloadMetrics(callCounts),
	}
}

func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 0
	case domain.SeverityHigh:
		return 1
	case domain.SeverityMedium:
		return 2
	default:
		return 3
	}
}
