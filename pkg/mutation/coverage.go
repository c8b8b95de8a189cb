package mutation

import (
	"sort"
	"time"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// CoverageType is the kind of relationship a CoverageRelationship
// records.
type CoverageType string

const (
	CoverageSwapAbsorb      CoverageType = "swap_absorb"
	CoverageSwapExchange    CoverageType = "swap_exchange"
	CoverageAbsenceCoverage CoverageType = "absence_coverage"
	CoverageRemoteSurrogate CoverageType = "remote_surrogate"
)

// CoverageStatus distinguishes a relationship active on the queried
// date from one merely scheduled within the lookahead window.
type CoverageStatus string

const (
	CoverageActive    CoverageStatus = "active"
	CoverageScheduled CoverageStatus = "scheduled"
)

// CoverageRelationship is one instance of a person covering for
// another.
type CoverageRelationship struct {
	ID               string
	CoveringPersonID string
	CoveredPersonID  string
	Type             CoverageType
	Status           CoverageStatus
	StartDate        time.Time
	EndDate          time.Time
	SwapID           string // empty outside swap-derived relationships
}

// PersonCoverageSummary is one person's providing/receiving tally,
// used to rank top coverers and most-covered people.
type PersonCoverageSummary struct {
	PersonID  string
	Providing []CoverageRelationship
	Receiving []CoverageRelationship
}

// CoverageView is the proxy-coverage read-side derivation for one
// queried date: it is computed fresh from swaps and absences on every
// call and never mutates persisted state.
type CoverageView struct {
	Date             time.Time
	ActiveCoverage   []CoverageRelationship
	UpcomingCoverage []CoverageRelationship
	ByPerson         []PersonCoverageSummary
}

// lookaheadWindow is how far past the queried date "upcoming" coverage
// is surfaced.
const lookaheadWindow = 7 * 24 * time.Hour

// BuildCoverageView aggregates swap-derived coverage (absorb and
// exchange) for the queried date and its lookahead window, and surfaces
// a placeholder for each absence in range whose coverage has not yet
// been assigned — the original's "(Coverage TBD)" surrogate, per
// spec.md's proxy-coverage supplement: display-only, never persisted.
func BuildCoverageView(queryDate time.Time, swaps []domain.Swap, absences []domain.Absence) CoverageView {
	upcomingEnd := queryDate.Add(lookaheadWindow)
	view := CoverageView{Date: queryDate}

	for _, s := range swaps {
		if s.Status != domain.SwapExecuted {
			continue
		}
		view.absorbOrExchange(s, queryDate, upcomingEnd)
	}

	for _, a := range absences {
		if a.End.Before(queryDate) || a.Start.After(upcomingEnd) {
			continue
		}
		active := !a.Start.After(queryDate) && !a.End.Before(queryDate)
		rel := CoverageRelationship{
			ID:               "absence-" + a.ID,
			CoveringPersonID: "",
			CoveredPersonID:  a.PersonID,
			Type:             CoverageAbsenceCoverage,
			Status:           statusFor(active),
			StartDate:        a.Start,
			EndDate:          a.End,
		}
		view.append(rel, active)
	}

	view.ByPerson = summarize(view.ActiveCoverage, view.UpcomingCoverage)
	return view
}

func (v *CoverageView) absorbOrExchange(s domain.Swap, queryDate, upcomingEnd time.Time) {
	if s.Kind == domain.SwapAbsorb {
		active := s.SourceWeek.Equal(queryDate)
		if !withinWindow(s.SourceWeek, queryDate, upcomingEnd) {
			return
		}
		v.append(CoverageRelationship{
			ID:               "swap-" + s.ID,
			CoveringPersonID: s.TargetPersonID,
			CoveredPersonID:  s.SourcePersonID,
			Type:             CoverageSwapAbsorb,
			Status:           statusFor(active),
			StartDate:        s.SourceWeek,
			EndDate:          s.SourceWeek,
			SwapID:           s.ID,
		}, active)
		return
	}

	// one-to-one: bidirectional exchange, one relationship per week.
	if !s.TargetWeek.IsZero() && withinWindow(s.TargetWeek, queryDate, upcomingEnd) {
		active := s.TargetWeek.Equal(queryDate)
		v.append(CoverageRelationship{
			ID:               "swap-" + s.ID + "-src",
			CoveringPersonID: s.SourcePersonID,
			CoveredPersonID:  s.TargetPersonID,
			Type:             CoverageSwapExchange,
			Status:           statusFor(active),
			StartDate:        s.TargetWeek,
			EndDate:          s.TargetWeek,
			SwapID:           s.ID,
		}, active)
	}
	if withinWindow(s.SourceWeek, queryDate, upcomingEnd) {
		active := s.SourceWeek.Equal(queryDate)
		v.append(CoverageRelationship{
			ID:               "swap-" + s.ID + "-tgt",
			CoveringPersonID: s.TargetPersonID,
			CoveredPersonID:  s.SourcePersonID,
			Type:             CoverageSwapExchange,
			Status:           statusFor(active),
			StartDate:        s.SourceWeek,
			EndDate:          s.SourceWeek,
			SwapID:           s.ID,
		}, active)
	}
}

func withinWindow(d, queryDate, upcomingEnd time.Time) bool {
	return !d.Before(queryDate) && !d.After(upcomingEnd)
}

func statusFor(active bool) CoverageStatus {
	if active {
		return CoverageActive
	}
	return CoverageScheduled
}

func (v *CoverageView) append(rel CoverageRelationship, active bool) {
	if active {
		v.ActiveCoverage = append(v.ActiveCoverage, rel)
	} else {
		v.UpcomingCoverage = append(v.UpcomingCoverage, rel)
	}
}

func summarize(active, upcoming []CoverageRelationship) []PersonCoverageSummary {
	all := append(append([]CoverageRelationship{}, active...), upcoming...)

	order := make([]string, 0)
	seen := make(map[string]bool)
	for _, rel := range all {
		if rel.CoveringPersonID == "" || seen[rel.CoveringPersonID] {
			continue
		}
		seen[rel.CoveringPersonID] = true
		order = append(order, rel.CoveringPersonID)
	}

	summaries := make([]PersonCoverageSummary, 0, len(order))
	for _, personID := range order {
		summary := PersonCoverageSummary{PersonID: personID}
		for _, rel := range all {
			if rel.CoveringPersonID == personID {
				summary.Providing = append(summary.Providing, rel)
			}
			if rel.CoveredPersonID == personID {
				summary.Receiving = append(summary.Receiving, rel)
			}
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return len(summaries[i].Providing)+len(summaries[i].Receiving) > len(summaries[j].Providing)+len(summaries[j].Receiving)
	})
	return summaries
}
