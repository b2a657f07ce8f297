package enums

import "fmt"

// ShipmentMode fixes what a shipment carries. Exactly one mode is active per
// shipment for its whole lifetime.
type ShipmentMode string

const (
	ShipmentModeDrug          ShipmentMode = "drug"
	ShipmentModeDrugGroup     ShipmentMode = "drug_group"
	ShipmentModeRandomization ShipmentMode = "randomization"
)

var validShipmentModes = []ShipmentMode{
	ShipmentModeDrug,
	ShipmentModeDrugGroup,
	ShipmentModeRandomization,
}

// String implements fmt.Stringer.
func (m ShipmentMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known ShipmentMode.
func (m ShipmentMode) IsValid() bool {
	for _, candidate := range validShipmentModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseShipmentMode converts raw input into a ShipmentMode.
func ParseShipmentMode(value string) (ShipmentMode, error) {
	for _, candidate := range validShipmentModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipment mode %q", value)
}
