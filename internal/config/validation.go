package config

import (
	"fmt"
	"strings"

	"github.com/scadaops/windprep/internal/validate"
)

// Validate validates a Config using the centralized validation package
func Validate(cfg Config) error {
	v := validate.New()

	if len(cfg.Filters) == 0 {
		v.AddError("filters", "at least one stage must be configured", "")
	}
	for _, name := range cfg.Filters {
		v.OneOf("filters", name, KnownStages)
	}

	if len(cfg.FeatureMapping) == 0 {
		v.AddError("feature_mapping", "must not be empty", "")
	}
	for feature, pattern := range cfg.FeatureMapping {
		v.Regexp(fmt.Sprintf("feature_mapping.%s", feature), pattern)
	}

	if len(cfg.TurbineSignature) == 0 {
		v.AddError("turbine_signature", "must not be empty", "")
	}
	for i, pattern := range cfg.TurbineSignature {
		v.Regexp(fmt.Sprintf("turbine_signature[%d]", i), pattern)
	}

	v.Positive("dt", cfg.DT)
	v.Positive("merge_chunk", cfg.MergeChunk)
	v.Positive("ram_limit", cfg.RAMLimit)
	v.Positive("frozen_sensor_limit", cfg.FrozenSensorLimit)
	v.NonNegative("missing_col_thr", cfg.MissingColThr)
	v.NonNegative("missing_duration_thr", cfg.MissingDurationThr)
	v.NonNegative("minimum_not_missing_duration", cfg.MinimumNotMissingDuration)
	v.FloatRange("impute_r2_threshold", cfg.ImputeR2Threshold, 0, 1)

	// Pair element bounds are enforced at decode time; duplicates are not.
	seen := map[TurbinePair]struct{}{}
	for _, p := range cfg.NacelleCalibrationTurbinePairs {
		if p.Upstream == p.Downstream {
			v.AddError("nacelle_calibration_turbine_pairs",
				"pair must reference two distinct turbines", fmt.Sprintf("[%d, %d]", p.Upstream, p.Downstream))
		}
		if _, ok := seen[p]; ok {
			v.AddError("nacelle_calibration_turbine_pairs",
				"duplicate pair", fmt.Sprintf("[%d, %d]", p.Upstream, p.Downstream))
		}
		seen[p] = struct{}{}
	}

	if cfg.HasStage(StageNacelleCalibration) {
		if len(cfg.NacelleCalibrationTurbinePairs) == 0 {
			v.AddError("nacelle_calibration_turbine_pairs",
				"required when the nacelle_calibration stage is configured", "")
		}
		v.NotEmpty("farm_input_path", cfg.FarmInputPath)
	}

	sig := strings.TrimSpace(cfg.RawDataFileSignature)
	v.NotEmpty("raw_data_file_signature", sig)
	if sig != "" && !strings.HasSuffix(sig, ".csv") {
		v.AddError("raw_data_file_signature",
			"unsupported data format, signature must end in .csv", sig)
	}

	if !v.IsValid() {
		return v.Err()
	}

	return nil
}
