package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath: configPath,
		version:    version,
	}
}

// Load loads configuration with precedence: ENV > File > Defaults.
// It enforces the order: Parse File (Strict) -> Apply Env -> normalize paths.
// Validation is a separate step via Validate.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.mergeFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	// Normalize paths to absolute so later stages are cwd-independent.
	for _, p := range []*string{&cfg.RawDataDirectory, &cfg.ProcessedDataPath, &cfg.TurbineInputPath, &cfg.FarmInputPath} {
		if *p == "" {
			continue
		}
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}

	return cfg, nil
}

// Defaults returns the built-in configuration, matching the upstream
// processing chain's constants (5 s sampling, 100k-row merge chunks,
// 20-minute frozen-sensor horizon).
func Defaults() Config {
	return Config{
		Filters: []string{
			StageUnresponsiveSensor,
			StageRangeFlag,
			StageBinFilter,
			StageStdRangeFlag,
			StageImputeMissingData,
			StageNormalize,
		},
		FeatureMapping: map[string]string{
			"time":              `^date$`,
			"turbine_status":    `^WTUR\.TurSt`,
			"wind_direction":    `^WMET\.HorWdDir`,
			"wind_speed":        `^WMET\.HorWdSpd`,
			"power_output":      `^WTUR\.W`,
			"nacelle_direction": `^WNAC\.Dir`,
		},
		TurbineSignature:          []string{`wt(\d+)`, `\.(\d+)$`},
		MergeChunk:                100000,
		RAMLimit:                  85,
		FrozenSensorLimit:         240, // 20 min at 5 s sampling
		MissingColThr:             1,
		MissingDurationThr:        600,
		MinimumNotMissingDuration: 1200,
		ImputeR2Threshold:         0.7,
		DT:                        5,
		RawDataFileSignature:      "*.csv",
	}
}

// fileConfig mirrors Config with pointer scalars so an explicit zero in the
// file (impute_r2_threshold: 0, missing_col_thr: 0) is distinguishable from
// an absent key.
type fileConfig struct {
	Filters                        []string          `yaml:"filters"`
	FeatureMapping                 map[string]string `yaml:"feature_mapping"`
	TurbineSignature               []string          `yaml:"turbine_signature"`
	MergeChunk                     *int              `yaml:"merge_chunk"`
	RAMLimit                       *int              `yaml:"ram_limit"`
	FrozenSensorLimit              *int              `yaml:"frozen_sensor_limit"`
	MissingColThr                  *int              `yaml:"missing_col_thr"`
	MissingDurationThr             *int              `yaml:"missing_duration_thr"`
	MinimumNotMissingDuration      *int              `yaml:"minimum_not_missing_duration"`
	ImputeR2Threshold              *float64          `yaml:"impute_r2_threshold"`
	DT                             *int              `yaml:"dt"`
	NacelleCalibrationTurbinePairs []TurbinePair     `yaml:"nacelle_calibration_turbine_pairs"`
	RawDataDirectory               *string           `yaml:"raw_data_directory"`
	ProcessedDataPath              *string           `yaml:"processed_data_path"`
	RawDataFileSignature           *string           `yaml:"raw_data_file_signature"`
	TurbineInputPath               *string           `yaml:"turbine_input_path"`
	FarmInputPath                  *string           `yaml:"farm_input_path"`
}

func (l *Loader) mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied config
	if err != nil {
		return err
	}

	// Strict decode: unknown keys are a config error, not a silent no-op.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	fileCfg := fileConfig{}
	if err := dec.Decode(&fileCfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if len(fileCfg.Filters) > 0 {
		cfg.Filters = fileCfg.Filters
	}
	if len(fileCfg.FeatureMapping) > 0 {
		cfg.FeatureMapping = fileCfg.FeatureMapping
	}
	if len(fileCfg.TurbineSignature) > 0 {
		cfg.TurbineSignature = fileCfg.TurbineSignature
	}
	setInt(&cfg.MergeChunk, fileCfg.MergeChunk)
	setInt(&cfg.RAMLimit, fileCfg.RAMLimit)
	setInt(&cfg.FrozenSensorLimit, fileCfg.FrozenSensorLimit)
	setInt(&cfg.MissingColThr, fileCfg.MissingColThr)
	setInt(&cfg.MissingDurationThr, fileCfg.MissingDurationThr)
	setInt(&cfg.MinimumNotMissingDuration, fileCfg.MinimumNotMissingDuration)
	setInt(&cfg.DT, fileCfg.DT)
	if fileCfg.ImputeR2Threshold != nil {
		cfg.ImputeR2Threshold = *fileCfg.ImputeR2Threshold
	}
	if len(fileCfg.NacelleCalibrationTurbinePairs) > 0 {
		cfg.NacelleCalibrationTurbinePairs = fileCfg.NacelleCalibrationTurbinePairs
	}
	setString(&cfg.RawDataDirectory, fileCfg.RawDataDirectory)
	setString(&cfg.ProcessedDataPath, fileCfg.ProcessedDataPath)
	setString(&cfg.RawDataFileSignature, fileCfg.RawDataFileSignature)
	setString(&cfg.TurbineInputPath, fileCfg.TurbineInputPath)
	setString(&cfg.FarmInputPath, fileCfg.FarmInputPath)

	return nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// mergeEnv applies WINDPREP_* overrides, the highest precedence layer.
func (l *Loader) mergeEnv(cfg *Config) {
	cfg.RawDataDirectory = ParseString("WINDPREP_RAW_DIR", cfg.RawDataDirectory)
	cfg.ProcessedDataPath = ParseString("WINDPREP_PROCESSED_PATH", cfg.ProcessedDataPath)
	cfg.RawDataFileSignature = ParseString("WINDPREP_FILE_SIGNATURE", cfg.RawDataFileSignature)
	cfg.TurbineInputPath = ParseString("WINDPREP_TURBINE_INPUT", cfg.TurbineInputPath)
	cfg.FarmInputPath = ParseString("WINDPREP_FARM_INPUT", cfg.FarmInputPath)
	cfg.DT = ParseInt("WINDPREP_DT", cfg.DT)
	cfg.MergeChunk = ParseInt("WINDPREP_MERGE_CHUNK", cfg.MergeChunk)
	cfg.RAMLimit = ParseInt("WINDPREP_RAM_LIMIT", cfg.RAMLimit)
	cfg.FrozenSensorLimit = ParseInt("WINDPREP_FROZEN_SENSOR_LIMIT", cfg.FrozenSensorLimit)
	cfg.MissingColThr = ParseInt("WINDPREP_MISSING_COL_THR", cfg.MissingColThr)
	cfg.MissingDurationThr = ParseInt("WINDPREP_MISSING_DURATION_THR", cfg.MissingDurationThr)
	cfg.MinimumNotMissingDuration = ParseInt("WINDPREP_MIN_NOT_MISSING_DURATION", cfg.MinimumNotMissingDuration)
	cfg.ImputeR2Threshold = ParseFloat("WINDPREP_IMPUTE_R2_THRESHOLD", cfg.ImputeR2Threshold)
}

// LoadFileConfig loads a YAML config file without applying env overrides.
func LoadFileConfig(path string) (Config, error) {
	cfg := Defaults()
	loader := NewLoader(path, "")
	if err := loader.mergeFile(&cfg, path); err != nil {
		return cfg, err
	}
	return cfg, nil
}
