package argo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/GitHub-AmanBhardwaj/Calypso/internal/models"
)

// juldEpoch is the ARGO time reference: JULD counts days since
// 1950-01-01 00:00:00 UTC.
var juldEpoch = time.Date(1950, time.January, 1, 0, 0, 0, 0, time.UTC)

// fillThreshold catches the ARGO fill values (99999.0 for coordinates and
// channels, 999999.0 for JULD). Anything at or beyond it is "no data".
const fillThreshold = 99990.0

// DecodeError marks a file that could not be decoded. The pipeline counts
// the file as failed and moves on.
type DecodeError struct {
	File string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.File, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// rawFile holds the per-file ARGO variables after shape coercion. The outer
// index of every field is the profile dimension.
type rawFile struct {
	platforms []string
	cycles    []int
	juld      []float64
	latitude  []float64
	longitude []float64
	pres      [][]float64
	temp      [][]float64
	psal      [][]float64
	presQC    []string
	tempQC    []string
	psalQC    []string
}

// DecodeFile opens one ARGO NetCDF container and extracts every profile it
// holds together with the raw per-level channel values and QC flags.
// Depth levels that are pure array padding (pressure is a fill value) are
// dropped here so only sampled levels reach quality control.
func DecodeFile(path string) ([]models.RawProfile, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, &DecodeError{File: path, Err: err}
	}
	defer nc.Close()

	raw, err := readVariables(nc)
	if err != nil {
		return nil, &DecodeError{File: path, Err: err}
	}

	profiles := make([]models.RawProfile, 0, len(raw.platforms))
	for i := range raw.platforms {
		platform, err := parsePlatform(raw.platforms[i])
		if err != nil {
			return nil, &DecodeError{File: path, Err: fmt.Errorf("profile %d: %w", i, err)}
		}

		profile := models.Profile{
			PlatformNumber: platform,
			CycleNumber:    raw.cycles[i],
			Timestamp:      juldTime(raw.juld[i]),
			Latitude:       coordinate(raw.latitude[i], 90),
			Longitude:      coordinate(raw.longitude[i], 180),
		}

		profiles = append(profiles, models.RawProfile{
			Profile: profile,
			Levels: buildLevels(
				raw.pres[i], raw.temp[i], raw.psal[i],
				raw.presQC[i], raw.tempQC[i], raw.psalQC[i],
			),
		})
	}

	return profiles, nil
}

// readVariables pulls the required ARGO variables and verifies every one of
// them spans the same profile dimension.
func readVariables(nc api.Group) (*rawFile, error) {
	raw := &rawFile{}
	var err error

	if raw.platforms, err = stringVector(nc, "PLATFORM_NUMBER"); err != nil {
		return nil, err
	}
	if raw.cycles, err = intVector(nc, "CYCLE_NUMBER"); err != nil {
		return nil, err
	}
	if raw.juld, err = floatVector(nc, "JULD"); err != nil {
		return nil, err
	}
	if raw.latitude, err = floatVector(nc, "LATITUDE"); err != nil {
		return nil, err
	}
	if raw.longitude, err = floatVector(nc, "LONGITUDE"); err != nil {
		return nil, err
	}
	if raw.pres, err = floatMatrix(nc, "PRES"); err != nil {
		return nil, err
	}
	if raw.temp, err = floatMatrix(nc, "TEMP"); err != nil {
		return nil, err
	}
	if raw.psal, err = floatMatrix(nc, "PSAL"); err != nil {
		return nil, err
	}
	if raw.presQC, err = stringVector(nc, "PRES_QC"); err != nil {
		return nil, err
	}
	if raw.tempQC, err = stringVector(nc, "TEMP_QC"); err != nil {
		return nil, err
	}
	if raw.psalQC, err = stringVector(nc, "PSAL_QC"); err != nil {
		return nil, err
	}

	nProf := len(raw.platforms)
	for name, n := range map[string]int{
		"CYCLE_NUMBER": len(raw.cycles),
		"JULD":         len(raw.juld),
		"LATITUDE":     len(raw.latitude),
		"LONGITUDE":    len(raw.longitude),
		"PRES":         len(raw.pres),
		"TEMP":         len(raw.temp),
		"PSAL":         len(raw.psal),
		"PRES_QC":      len(raw.presQC),
		"TEMP_QC":      len(raw.tempQC),
		"PSAL_QC":      len(raw.psalQC),
	} {
		if n != nProf {
			return nil, fmt.Errorf("variable %s has %d profiles, expected %d", name, n, nProf)
		}
	}

	return raw, nil
}

// buildLevels assembles the per-level records for one profile, excluding
// trailing (or interior) padding entries. A level with no pressure carries
// no depth information and is a storage artifact, never a reading.
func buildLevels(pres, temp, psal []float64, presQC, tempQC, psalQC string) []models.RawLevel {
	levels := make([]models.RawLevel, 0, len(pres))
	for j, p := range pres {
		if isFill(p) {
			continue
		}
		levels = append(levels, models.RawLevel{
			Pressure:    p,
			Temperature: channelValue(temp, j),
			Salinity:    channelValue(psal, j),
			PresQC:      flagAt(presQC, j),
			TempQC:      flagAt(tempQC, j),
			SalQC:       flagAt(psalQC, j),
		})
	}
	return levels
}

// channelValue lifts one reading out of a channel vector, mapping fill
// values to absent.
func channelValue(vals []float64, j int) *float64 {
	if j >= len(vals) {
		return nil
	}
	v := vals[j]
	if isFill(v) {
		return nil
	}
	return &v
}

func isFill(v float64) bool {
	return math.IsNaN(v) || math.Abs(v) >= fillThreshold
}

// flagAt indexes a QC flag string defensively; a missing flag is blank,
// which no accepted set contains.
func flagAt(flags string, j int) byte {
	if j < len(flags) {
		return flags[j]
	}
	return ' '
}

// juldTime converts an ARGO julian day offset to a timestamp. Fill values
// and negative offsets yield a nil (unknown) timestamp.
func juldTime(days float64) *time.Time {
	if math.IsNaN(days) || days < 0 || days >= fillThreshold {
		return nil
	}
	t := juldEpoch.Add(time.Duration(days * float64(24) * float64(time.Hour)))
	return &t
}

// coordinate validates a latitude or longitude value; fill values and
// out-of-range positions are absent.
func coordinate(v float64, limit float64) *float64 {
	if math.IsNaN(v) || math.Abs(v) > limit {
		return nil
	}
	return &v
}

// parsePlatform turns the fixed-width char platform identifier into the
// integer platform number.
func parsePlatform(s string) (int, error) {
	trimmed := strings.TrimFunc(s, func(r rune) bool {
		return r == ' ' || r == 0
	})
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid PLATFORM_NUMBER %q", s)
	}
	return n, nil
}

func variableValues(nc api.Group, name string) (any, error) {
	vr, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return vr.Values, nil
}

// floatVector coerces a per-profile numeric variable. Files store these as
// either float or double depending on the data centre.
func floatVector(nc api.Group, name string) ([]float64, error) {
	values, err := variableValues(nc, name)
	if err != nil {
		return nil, err
	}
	return asFloat64Vector(values, name)
}

func asFloat64Vector(values any, name string) ([]float64, error) {
	switch v := values.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		return out, nil
	case float64:
		return []float64{v}, nil
	case float32:
		return []float64{float64(v)}, nil
	default:
		return nil, fmt.Errorf("variable %s: unexpected type %T", name, values)
	}
}

// floatMatrix coerces a (profile, level) channel variable.
func floatMatrix(nc api.Group, name string) ([][]float64, error) {
	values, err := variableValues(nc, name)
	if err != nil {
		return nil, err
	}
	return asFloat64Matrix(values, name)
}

func asFloat64Matrix(values any, name string) ([][]float64, error) {
	switch v := values.(type) {
	case [][]float64:
		return v, nil
	case [][]float32:
		out := make([][]float64, len(v))
		for i, row := range v {
			out[i] = make([]float64, len(row))
			for j, f := range row {
				out[i][j] = float64(f)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("variable %s: unexpected type %T", name, values)
	}
}

// intVector coerces the per-profile cycle index.
func intVector(nc api.Group, name string) ([]int, error) {
	values, err := variableValues(nc, name)
	if err != nil {
		return nil, err
	}
	switch v := values.(type) {
	case []int32:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out, nil
	case []int64:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out, nil
	case []int16:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out, nil
	case int32:
		return []int{int(v)}, nil
	default:
		return nil, fmt.Errorf("variable %s: unexpected type %T", name, values)
	}
}

// stringVector coerces a per-profile char variable; for (profile, level)
// char variables each profile's flags arrive as one string.
func stringVector(nc api.Group, name string) ([]string, error) {
	values, err := variableValues(nc, name)
	if err != nil {
		return nil, err
	}
	switch v := values.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("variable %s: unexpected type %T", name, values)
	}
}
