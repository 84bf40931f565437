// Package pipeline turns raw well production CSV rows into the numeric feature
// matrix and target vector the trainer consumes.
package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"oil-forecaster/core/apperrors"
)

// Source columns read from the production CSV
const (
	ColDownholePressure = "AVG_DOWNHOLE_PRESSURE"
	ColDPTubing         = "AVG_DP_TUBING"
	ColChokeSize        = "AVG_CHOKE_SIZE_P"
	ColOilVolume        = "BORE_OIL_VOL"
	ColGasVolume        = "BORE_GAS_VOL"
	ColWaterVolume      = "BORE_WAT_VOL"
)

// TargetName is the predicted quantity, oil debit in tonnes per day
const TargetName = "debit_oil_t_per_day"

const (
	// oilDensity converts Sm3 of oil to tonnes
	oilDensity = 0.842
	// headPerBar converts tubing pressure drop (bar) to pump head (m)
	headPerBar = 10.2
)

// FeatureNames is the fixed feature order of every Dataset
var FeatureNames = []string{"P_downhole", "Q_liquid", "H_pump", "WC_percent", "GFR", "choke_size"}

var requiredColumns = []string{
	ColDownholePressure, ColDPTubing, ColChokeSize, ColOilVolume, ColGasVolume,
}

// Dataset is the cleaned feature matrix and target vector
type Dataset struct {
	FeatureNames []string
	TargetName   string
	X            [][]float64
	Y            []float64
	RowsRead     int
	RowsDropped  int
}

// Len returns the number of usable rows
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Transform parses a production CSV and derives the model features.
// Rows with a missing or non-finite value are dropped; a missing water volume
// counts as zero. Missing required columns or an empty result are data errors.
func Transform(raw []byte) (*Dataset, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperrors.DataError("dataset is empty")
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, apperrors.DataError("read header: %v", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, apperrors.DataError("missing required column %s", col)
		}
	}
	waterIdx, hasWater := index[ColWaterVolume]

	ds := &Dataset{
		FeatureNames: append([]string(nil), FeatureNames...),
		TargetName:   TargetName,
	}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.DataError("read row %d: %v", ds.RowsRead+1, err)
		}
		ds.RowsRead++

		field := func(col string) float64 {
			i := index[col]
			if i >= len(record) {
				return math.NaN()
			}
			return ParseNumeric(record[i])
		}
		water := 0.0
		if hasWater && waterIdx < len(record) {
			if v := ParseNumeric(record[waterIdx]); !math.IsNaN(v) {
				water = v
			}
		}

		features, target, ok := derive(
			field(ColDownholePressure), field(ColDPTubing), field(ColChokeSize),
			field(ColOilVolume), field(ColGasVolume), water,
		)
		if !ok {
			ds.RowsDropped++
			continue
		}
		ds.X = append(ds.X, features)
		ds.Y = append(ds.Y, target)
	}

	if ds.Len() == 0 {
		return nil, apperrors.DataError("no valid rows after cleaning (%d read)", ds.RowsRead)
	}
	return ds, nil
}

func derive(pressure, dpTubing, choke, oil, gas, water float64) ([]float64, float64, bool) {
	liquid := oil + water
	wc, gfr := math.NaN(), math.NaN()
	if liquid > 0 {
		wc = water / liquid * 100
	}
	if oil > 0 {
		gfr = gas / oil
	}
	features := []float64{pressure, liquid, dpTubing * headPerBar, wc, gfr, choke}
	target := oil * oilDensity
	for _, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, false
		}
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, 0, false
	}
	return features, target, true
}

// ParseNumeric parses a number that may carry thousands-separator commas.
// Blank or unparseable input yields NaN.
func ParseNumeric(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
