package enums

import "fmt"

// AcknowledgmentStatus records what a site reported for one shipped unit.
// Precedence when deriving from counts: received == sent -> received,
// 0 < received < sent -> partial, received == 0 && damaged > 0 -> damaged,
// otherwise missing.
type AcknowledgmentStatus string

const (
	AckStatusNotAcknowledged AcknowledgmentStatus = "not_acknowledged"
	AckStatusReceived        AcknowledgmentStatus = "received"
	AckStatusPartial         AcknowledgmentStatus = "partial"
	AckStatusMissing         AcknowledgmentStatus = "missing"
	AckStatusDamaged         AcknowledgmentStatus = "damaged"
)

var validAcknowledgmentStatuses = []AcknowledgmentStatus{
	AckStatusNotAcknowledged,
	AckStatusReceived,
	AckStatusPartial,
	AckStatusMissing,
	AckStatusDamaged,
}

// String implements fmt.Stringer.
func (s AcknowledgmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AcknowledgmentStatus.
func (s AcknowledgmentStatus) IsValid() bool {
	for _, candidate := range validAcknowledgmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAcknowledgmentStatus converts raw input into an AcknowledgmentStatus.
func ParseAcknowledgmentStatus(value string) (AcknowledgmentStatus, error) {
	for _, candidate := range validAcknowledgmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid acknowledgment status %q", value)
}
