package constraints

import (
	"fmt"

	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// ACGME supervision ratios: 1 faculty per N residents by training year.
const (
	PGY1SupervisionRatio  = 2
	PGY23SupervisionRatio = 4
)

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// validateBlockSupervision checks one block's supervisor headcount against
// its resident headcount, returning a violation on shortfall.
func validateBlockSupervision(block domain.Block, assignments []domain.Assignment, persons map[string]domain.Person) *domain.Violation {
	var pgy1, pgy23, supervising int

	for _, a := range assignments {
		person, ok := persons[a.PersonID]
		if !ok {
			continue
		}
		if person.IsResident() {
			if person.TrainingYear == domain.PGY1 {
				pgy1++
			} else {
				pgy23++
			}
			continue
		}
		if person.Kind == domain.PersonKindFaculty && a.Role == domain.RoleSupervising {
			supervising++
		}
	}

	required := ceilDiv(pgy1, PGY1SupervisionRatio)
	if r := ceilDiv(pgy23, PGY23SupervisionRatio); r > required {
		required = r
	}

	if supervising >= required {
		return nil
	}

	return &domain.Violation{
		RuleType:  "supervision_ratio",
		Severity:  domain.SeverityHigh,
		DateStart: block.Date,
		DateEnd:   block.Date,
		Message: fmt.Sprintf("block %s %s: insufficient supervising faculty. required: %d, available: %d (pgy-1: %d, pgy-2/3: %d)",
			block.Date.Format("2006-01-02"), block.Session, required, supervising, pgy1, pgy23),
	}
}

// ValidateSupervision checks every block's supervision ratio (invariant I2).
func ValidateSupervision(blocks []domain.Block, assignments []domain.Assignment, persons map[string]domain.Person) []domain.Violation {
	byBlock := make(map[string][]domain.Assignment, len(blocks))
	for _, a := range assignments {
		byBlock[a.BlockID] = append(byBlock[a.BlockID], a)
	}

	var violations []domain.Violation
	for _, b := range blocks {
		if v := validateBlockSupervision(b, byBlock[b.ID], persons); v != nil {
			violations = append(violations, *v)
		}
	}
	return violations
}
