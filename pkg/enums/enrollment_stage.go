package enums

import "fmt"

// EnrollmentStage identifies which step of the trial a submission belongs to.
type EnrollmentStage string

const (
	StageScreening     EnrollmentStage = "screening"
	StageRandomization EnrollmentStage = "randomization"
)

var validEnrollmentStages = []EnrollmentStage{
	StageScreening,
	StageRandomization,
}

// String implements fmt.Stringer.
func (s EnrollmentStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EnrollmentStage.
func (s EnrollmentStage) IsValid() bool {
	for _, candidate := range validEnrollmentStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEnrollmentStage converts raw input into an EnrollmentStage.
func ParseEnrollmentStage(value string) (EnrollmentStage, error) {
	for _, candidate := range validEnrollmentStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enrollment stage %q", value)
}
