package enums

import "fmt"

// ShipmentUnitType discriminates what a shipment unit row points at.
type ShipmentUnitType string

const (
	UnitTypeDrug      ShipmentUnitType = "drug"
	UnitTypeDrugGroup ShipmentUnitType = "drug_group"
	UnitTypeKitRow    ShipmentUnitType = "kit_row"
)

var validShipmentUnitTypes = []ShipmentUnitType{
	UnitTypeDrug,
	UnitTypeDrugGroup,
	UnitTypeKitRow,
}

// String implements fmt.Stringer.
func (u ShipmentUnitType) String() string {
	return string(u)
}

// IsValid reports whether the value is a known ShipmentUnitType.
func (u ShipmentUnitType) IsValid() bool {
	for _, candidate := range validShipmentUnitTypes {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseShipmentUnitType converts raw input into a ShipmentUnitType.
func ParseShipmentUnitType(value string) (ShipmentUnitType, error) {
	for _, candidate := range validShipmentUnitTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipment unit type %q", value)
}
