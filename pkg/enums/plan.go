package enums

import (
	"fmt"
	"strings"
)

// Plan is the account tier. Paid plans are named after the credit package
// that granted them.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

var validPlans = []Plan{
	PlanFree,
	PlanStarter,
	PlanPro,
	PlanBusiness,
}

// String implements fmt.Stringer.
func (p Plan) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p Plan) IsValid() bool {
	for _, candidate := range validPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlan converts raw input into a Plan. Matching is case-insensitive
// because package names are stored in display case.
func ParsePlan(value string) (Plan, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPlans {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan %q", value)
}
