package scada

import (
	"fmt"
	"regexp"
	"strconv"
)

// Resolver maps raw SCADA column names onto canonical features and turbine
// IDs using the configured feature_mapping and turbine_signature patterns.
type Resolver struct {
	features  map[string]*regexp.Regexp
	signature []*regexp.Regexp
}

// NewResolver compiles the mapping patterns. Patterns are expected to have
// been validated beforehand; compilation errors are still surfaced.
func NewResolver(featureMapping map[string]string, turbineSignature []string) (*Resolver, error) {
	r := &Resolver{
		features: make(map[string]*regexp.Regexp, len(featureMapping)),
	}
	for feature, pattern := range featureMapping {
		rx, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("feature_mapping.%s: %w", feature, err)
		}
		r.features[feature] = rx
	}
	for i, pattern := range turbineSignature {
		rx, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("turbine_signature[%d]: %w", i, err)
		}
		r.signature = append(r.signature, rx)
	}
	return r, nil
}

// Feature resolves a raw column name to its canonical feature name.
func (r *Resolver) Feature(rawColumn string) (string, bool) {
	for feature, rx := range r.features {
		if rx.MatchString(rawColumn) {
			return feature, true
		}
	}
	return "", false
}

// TurbineID extracts the turbine index from a raw column name and returns it
// in canonical "wtNNN" form. The signature fragments are tried in order; the
// first with a capturing match wins.
func (r *Resolver) TurbineID(rawColumn string) (string, bool) {
	for _, rx := range r.signature {
		m := rx.FindStringSubmatch(rawColumn)
		if len(m) < 2 {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 0 {
			continue
		}
		return TurbineID(idx), true
	}
	return "", false
}

// TurbineID formats a turbine index in canonical "wtNNN" form.
func TurbineID(index int) string {
	return fmt.Sprintf("wt%03d", index)
}
