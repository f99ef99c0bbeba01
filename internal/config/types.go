// Package config provides configuration management for windprep.
package config

import (
	"fmt"
	"time"
)

// Stage names accepted in the filters list. The configured order is
// preserved at run time; this list only bounds the accepted vocabulary.
const (
	StageNacelleCalibration = "nacelle_calibration"
	StageUnresponsiveSensor = "unresponsive_sensor"
	StageInoperational      = "inoperational"
	StageRangeFlag          = "range_flag"
	StageWindowRangeFlag    = "window_range_flag"
	StageBinFilter          = "bin_filter"
	StageStdRangeFlag       = "std_range_flag"
	StageSplit              = "split"
	StageImputeMissingData  = "impute_missing_data"
	StageNormalize          = "normalize"
)

// KnownStages lists every stage name the pipeline understands.
var KnownStages = []string{
	StageNacelleCalibration,
	StageUnresponsiveSensor,
	StageInoperational,
	StageRangeFlag,
	StageWindowRangeFlag,
	StageBinFilter,
	StageStdRangeFlag,
	StageSplit,
	StageImputeMissingData,
	StageNormalize,
}

// TurbinePair identifies two turbines whose wake alignment is used for
// northing calibration. YAML form is a two-element sequence of indices.
type TurbinePair struct {
	Upstream   int
	Downstream int
}

// UnmarshalYAML decodes a two-element integer sequence into a TurbinePair.
func (p *TurbinePair) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw []int
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("turbine pair must have exactly 2 elements, got %d", len(raw))
	}
	if raw[0] < 0 || raw[1] < 0 {
		return fmt.Errorf("turbine pair indices must be non-negative, got [%d, %d]", raw[0], raw[1])
	}
	p.Upstream, p.Downstream = raw[0], raw[1]
	return nil
}

// MarshalYAML encodes a TurbinePair back to its two-element sequence form.
func (p TurbinePair) MarshalYAML() (interface{}, error) {
	return []int{p.Upstream, p.Downstream}, nil
}

// Config is the preprocessing pipeline configuration record. The YAML key set
// mirrors the upstream pipeline configuration file exactly.
type Config struct {
	// Pipeline stages to apply, order-significant.
	Filters []string `yaml:"filters"`

	// Canonical feature name -> regexp matching per-turbine raw column names.
	FeatureMapping map[string]string `yaml:"feature_mapping"`

	// Regexp fragments used to extract the turbine index from a column name.
	TurbineSignature []string `yaml:"turbine_signature"`

	// Tuning knobs for the merge/filter/impute stages.
	MergeChunk                int     `yaml:"merge_chunk"`                   // rows merged per chunk
	RAMLimit                  int     `yaml:"ram_limit"`                     // soft memory budget, GiB
	FrozenSensorLimit         int     `yaml:"frozen_sensor_limit"`           // identical samples before a sensor counts as frozen
	MissingColThr             int     `yaml:"missing_col_thr"`               // columns missing before a timestep counts as gapped
	MissingDurationThr        int     `yaml:"missing_duration_thr"`          // seconds a gap may last before splitting
	MinimumNotMissingDuration int     `yaml:"minimum_not_missing_duration"`  // seconds a kept segment must span
	ImputeR2Threshold         float64 `yaml:"impute_r2_threshold"`           // minimum donor r-squared for imputation
	DT                        int     `yaml:"dt"`                            // sample interval, seconds

	// Turbine index pairs used by nacelle northing calibration.
	NacelleCalibrationTurbinePairs []TurbinePair `yaml:"nacelle_calibration_turbine_pairs"`

	// Filesystem locations.
	RawDataDirectory     string `yaml:"raw_data_directory"`
	ProcessedDataPath    string `yaml:"processed_data_path"`
	RawDataFileSignature string `yaml:"raw_data_file_signature"`
	TurbineInputPath     string `yaml:"turbine_input_path"`
	FarmInputPath        string `yaml:"farm_input_path"`
}

// SampleInterval returns dt as a duration.
func (c Config) SampleInterval() time.Duration {
	return time.Duration(c.DT) * time.Second
}

// MissingDuration returns missing_duration_thr as a duration.
func (c Config) MissingDuration() time.Duration {
	return time.Duration(c.MissingDurationThr) * time.Second
}

// MinimumSegment returns minimum_not_missing_duration as a duration.
func (c Config) MinimumSegment() time.Duration {
	return time.Duration(c.MinimumNotMissingDuration) * time.Second
}

// HasStage reports whether the named stage is configured.
func (c Config) HasStage(name string) bool {
	for _, f := range c.Filters {
		if f == name {
			return true
		}
	}
	return false
}
