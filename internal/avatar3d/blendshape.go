package avatar3d

import "strings"

// Shape is a symbolic facial blend shape, resolved to a concrete morph
// slot per face part by the Binding.
type Shape int

const (
	ShapeJoy Shape = iota
	ShapeSorrow
	ShapeSurprised
	ShapeAngry
	ShapeNeutral
	ShapeMouthA
	ShapeMouthE
	ShapeMouthI
	ShapeMouthO
	ShapeMouthU
	ShapeCount
)

var shapeKeys = [ShapeCount]string{
	"joy",
	"sorrow",
	"surprised",
	"angry",
	"neutral",
	"mouth_a",
	"mouth_e",
	"mouth_i",
	"mouth_o",
	"mouth_u",
}

// ShapeNames maps every symbolic shape to the morph target name used by
// the loaded asset.
type ShapeNames [ShapeCount]string

// DefaultShapeNames follows the VRoid export naming.
var DefaultShapeNames = ShapeNames{
	"Fcl_ALL_Joy",
	"Fcl_ALL_Sorrow",
	"Fcl_ALL_Surprised",
	"Fcl_ALL_Angry",
	"Fcl_ALL_Neutral",
	"Fcl_MTH_A",
	"Fcl_MTH_E",
	"Fcl_MTH_I",
	"Fcl_MTH_O",
	"Fcl_MTH_U",
}

var expressionShapes = []Shape{ShapeJoy, ShapeSorrow, ShapeSurprised, ShapeAngry, ShapeNeutral}

var mouthShapes = []Shape{ShapeMouthA, ShapeMouthE, ShapeMouthI, ShapeMouthO, ShapeMouthU}

func (s Shape) String() string {
	if s < 0 || s >= ShapeCount {
		return "unknown"
	}
	return shapeKeys[s]
}

func (s Shape) IsMouth() bool {
	return s >= ShapeMouthA && s <= ShapeMouthU
}

// ShapeFromKey parses the config key form ("joy", "mouth_a", ...).
func ShapeFromKey(key string) (Shape, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for i, k := range shapeKeys {
		if k == key {
			return Shape(i), true
		}
	}
	return -1, false
}

// ShapeNamesFromMap overrides the defaults with the entries of m, keyed by
// ShapeFromKey names. Unknown keys and empty values are ignored.
func ShapeNamesFromMap(m map[string]string) ShapeNames {
	names := DefaultShapeNames
	for k, v := range m {
		if s, ok := ShapeFromKey(k); ok && v != "" {
			names[s] = v
		}
	}
	return names
}

// ShapeWeights holds one weight per symbolic shape.
type ShapeWeights [ShapeCount]float32

func (w *ShapeWeights) Set(s Shape, value float32) {
	w[s] = clamp(value, 0, 1)
}

func (w *ShapeWeights) Get(s Shape) float32 {
	return w[s]
}

func (w *ShapeWeights) Reset() {
	for i := range w {
		w[i] = 0
	}
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
