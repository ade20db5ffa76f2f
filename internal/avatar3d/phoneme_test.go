package avatar3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhonemeOf(t *testing.T) {
	tests := []struct {
		in   rune
		want Phoneme
	}{
		{'a', PhonemeA},
		{'A', PhonemeA},
		{'á', PhonemeA},
		{'Å', PhonemeA},
		{'ā', PhonemeA},
		{'e', PhonemeE},
		{'È', PhonemeE},
		{'ï', PhonemeI},
		{'õ', PhonemeO},
		{'Ü', PhonemeU},
		{'b', PhonemeNone},
		{' ', PhonemeNone},
		{'!', PhonemeNone},
		{'😊', PhonemeNone},
		{'y', PhonemeNone},
	}

	for _, tt := range tests {
		if got := PhonemeOf(tt.in); got != tt.want {
			t.Errorf("PhonemeOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPhonemeOfIsTotal(t *testing.T) {
	valid := map[Phoneme]bool{PhonemeNone: true, PhonemeA: true, PhonemeE: true, PhonemeI: true, PhonemeO: true, PhonemeU: true}
	for r := rune(0); r < 0x3000; r++ {
		if !valid[PhonemeOf(r)] {
			t.Fatalf("PhonemeOf(%U) outside the vowel classes", r)
		}
	}
}

func TestPhonemeShape(t *testing.T) {
	s, ok := PhonemeO.Shape()
	assert.True(t, ok)
	assert.Equal(t, ShapeMouthO, s)
	assert.True(t, s.IsMouth())

	_, ok = PhonemeNone.Shape()
	assert.False(t, ok)
	assert.Equal(t, "none", PhonemeNone.String())
}
