package argo

import "github.com/GitHub-AmanBhardwaj/Calypso/internal/models"

// acceptedQC is the set of ARGO quality flags that let a reading through:
// '1' good data, '2' probably good data.
var acceptedQC = map[byte]bool{'1': true, '2': true}

// ApplyQC returns the value unchanged when its flag is in the accepted set,
// nil otherwise. Absent values stay absent regardless of flag.
func ApplyQC(value *float64, flag byte) *float64 {
	if value == nil || !acceptedQC[flag] {
		return nil
	}
	return value
}

// FilterLevels converts decoded levels into measurements, gating temperature
// and salinity independently on their QC flags. Pressure anchors depth and
// is kept even when a correlated channel is rejected. Source level order is
// preserved.
func FilterLevels(levels []models.RawLevel) []models.Measurement {
	out := make([]models.Measurement, 0, len(levels))
	for _, lv := range levels {
		out = append(out, models.Measurement{
			PressureDbar:       lv.Pressure,
			TemperatureCelsius: ApplyQC(lv.Temperature, lv.TempQC),
			SalinityPSU:        ApplyQC(lv.Salinity, lv.SalQC),
		})
	}
	return out
}
