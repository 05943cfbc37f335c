package models

import "time"

// Profile is one float surfacing event decoded from an ARGO container.
// (platform_number, cycle_number) is the natural key; the database assigns
// the surrogate profile_id on insert.
type Profile struct {
	PlatformNumber int
	CycleNumber    int
	Timestamp      *time.Time
	Latitude       *float64
	Longitude      *float64
}

// Measurement is one depth-level reading belonging to a profile.
// Temperature and salinity are nil when the reading is absent in the source
// or its QC flag was rejected; pressure anchors depth and is always present.
type Measurement struct {
	PressureDbar       float64
	TemperatureCelsius *float64
	SalinityPSU        *float64
}

// RawLevel carries one decoded depth level before quality control.
// Values are nil when the source stored a fill value for that channel.
type RawLevel struct {
	Pressure    float64
	Temperature *float64
	Salinity    *float64
	PresQC      byte
	TempQC      byte
	SalQC       byte
}

// RawProfile bundles decoded profile metadata with its real (non-padding)
// depth levels, in source order.
type RawProfile struct {
	Profile Profile
	Levels  []RawLevel
}
