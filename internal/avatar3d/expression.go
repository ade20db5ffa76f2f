package avatar3d

import (
	"strconv"
	"strings"
)

// Expression is the discrete facial expression category.
type Expression int

const (
	ExpressionNeutral Expression = iota
	ExpressionHappy
	ExpressionSad
	ExpressionSurprised
	ExpressionAngry
)

var expressionNames = map[Expression]string{
	ExpressionNeutral:   "neutral",
	ExpressionHappy:     "happy",
	ExpressionSad:       "sad",
	ExpressionSurprised: "surprised",
	ExpressionAngry:     "angry",
}

func (e Expression) String() string {
	if name, ok := expressionNames[e]; ok {
		return name
	}
	return "neutral"
}

func ParseExpression(s string) (Expression, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for e, name := range expressionNames {
		if name == s {
			return e, true
		}
	}
	return ExpressionNeutral, false
}

// Shape returns the blend shape that carries e.
func (e Expression) Shape() Shape {
	switch e {
	case ExpressionHappy:
		return ShapeJoy
	case ExpressionSad:
		return ShapeSorrow
	case ExpressionSurprised:
		return ShapeSurprised
	case ExpressionAngry:
		return ShapeAngry
	}
	return ShapeNeutral
}

// ExpressionState is the active expression paired with its blend factor.
type ExpressionState struct {
	Expression Expression
	Blend      float32
}

var NeutralState = ExpressionState{Expression: ExpressionNeutral, Blend: 1}

func FullExpression(e Expression) ExpressionState {
	return ExpressionState{Expression: e, Blend: 1}
}

func (s ExpressionState) IsNeutral() bool {
	return s.Expression == ExpressionNeutral || s.Blend <= 0
}

// String renders the compact form renderers understand: "happy" at full
// blend, "happy:0.36" mid-fade, "neutral" otherwise.
func (s ExpressionState) String() string {
	if s.IsNeutral() {
		return "neutral"
	}
	if s.Blend >= 1 {
		return s.Expression.String()
	}
	return s.Expression.String() + ":" + strconv.FormatFloat(float64(s.Blend), 'f', -1, 32)
}

// ParseExpressionState reads the compact form. A missing or unreadable
// blend means full blend.
func ParseExpressionState(v string) ExpressionState {
	name, blendStr, hasBlend := strings.Cut(v, ":")
	e, ok := ParseExpression(name)
	if !ok {
		return NeutralState
	}
	blend := float32(1)
	if hasBlend {
		if f, err := strconv.ParseFloat(strings.TrimSpace(blendStr), 32); err == nil {
			blend = clamp(float32(f), 0, 1)
		}
	}
	return ExpressionState{Expression: e, Blend: blend}
}

// ExpressionController owns the expression shapes of every face part.
// Mouth shapes belong to the LipSyncController and are never touched here.
type ExpressionController struct {
	binding *Binding
	state   ExpressionState
}

func NewExpressionController(b *Binding) *ExpressionController {
	return &ExpressionController{binding: b, state: NeutralState}
}

// Set zeroes every expression shape on every face part, then applies the
// new expression at its blend. Neutral writes nothing after zeroing.
func (ec *ExpressionController) Set(state ExpressionState) {
	state.Blend = clamp(state.Blend, 0, 1)
	ec.state = state

	for _, s := range expressionShapes {
		ec.binding.SetShape(s, 0)
	}
	if state.IsNeutral() {
		return
	}
	ec.binding.SetShape(state.Expression.Shape(), state.Blend)
}

func (ec *ExpressionController) State() ExpressionState {
	return ec.state
}
