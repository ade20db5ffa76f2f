package avatar3d

import (
	"strings"
	"unicode"
)

// Phoneme is a coarse vowel class used to pick a mouth shape.
type Phoneme string

const (
	PhonemeNone Phoneme = ""
	PhonemeA    Phoneme = "A"
	PhonemeE    Phoneme = "E"
	PhonemeI    Phoneme = "I"
	PhonemeO    Phoneme = "O"
	PhonemeU    Phoneme = "U"
)

var vowelClasses = []struct {
	phoneme Phoneme
	runes   string
}{
	{PhonemeA, "aáàâäãåā"},
	{PhonemeE, "eéèêëē"},
	{PhonemeI, "iíìîïī"},
	{PhonemeO, "oóòôöõō"},
	{PhonemeU, "uúùûüū"},
}

// PhonemeOf classifies a single character. Accented forms map to their
// base vowel; everything else closes the mouth.
func PhonemeOf(r rune) Phoneme {
	lr := unicode.ToLower(r)
	for _, vc := range vowelClasses {
		if strings.ContainsRune(vc.runes, lr) {
			return vc.phoneme
		}
	}
	return PhonemeNone
}

// Shape returns the mouth shape driven by p. PhonemeNone has none.
func (p Phoneme) Shape() (Shape, bool) {
	switch p {
	case PhonemeA:
		return ShapeMouthA, true
	case PhonemeE:
		return ShapeMouthE, true
	case PhonemeI:
		return ShapeMouthI, true
	case PhonemeO:
		return ShapeMouthO, true
	case PhonemeU:
		return ShapeMouthU, true
	}
	return -1, false
}

func (p Phoneme) String() string {
	if p == PhonemeNone {
		return "none"
	}
	return string(p)
}
