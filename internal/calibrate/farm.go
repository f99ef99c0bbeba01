package calibrate

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Coord is a turbine position in the farm's local east/north frame, meters.
type Coord struct {
	X float64
	Y float64
}

// farmFile matches the layout section of a farm description file. Both the
// nested form (farm: layout_x/layout_y) and the flat form are accepted.
type farmFile struct {
	Farm *struct {
		LayoutX []float64 `yaml:"layout_x"`
		LayoutY []float64 `yaml:"layout_y"`
	} `yaml:"farm"`
	LayoutX []float64 `yaml:"layout_x"`
	LayoutY []float64 `yaml:"layout_y"`
}

// LoadFarmLayout reads turbine coordinates from the farm input file. The
// returned slice is indexed by turbine index.
func LoadFarmLayout(path string) ([]Coord, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied input file
	if err != nil {
		return nil, fmt.Errorf("read farm input: %w", err)
	}

	var ff farmFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse farm input %s: %w", path, err)
	}

	xs, ys := ff.LayoutX, ff.LayoutY
	if ff.Farm != nil {
		xs, ys = ff.Farm.LayoutX, ff.Farm.LayoutY
	}
	if len(xs) == 0 || len(xs) != len(ys) {
		return nil, fmt.Errorf("farm input %s: layout_x/layout_y missing or mismatched (%d vs %d)",
			path, len(xs), len(ys))
	}

	coords := make([]Coord, len(xs))
	for i := range xs {
		coords[i] = Coord{X: xs[i], Y: ys[i]}
	}
	return coords, nil
}

// Bearing returns the compass bearing in degrees from a to b: the wind
// direction for which a is directly upstream of b.
func Bearing(from, to Coord) float64 {
	dx := from.X - to.X
	dy := from.Y - to.Y
	deg := math.Atan2(dx, dy) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
