package avatar3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEmotion(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Expression
	}{
		{"happy word", "I am so happy!", ExpressionHappy},
		{"happy emoji", "Here you go 🌸", ExpressionHappy},
		{"upper case", "WOW that is GREAT", ExpressionHappy},
		{"sad", "I'm sorry to hear that.", ExpressionSad},
		{"sad emoji", "oh no 😢", ExpressionSad},
		{"surprised", "Wow, really?", ExpressionSurprised},
		{"angry", "That makes me mad.", ExpressionAngry},
		{"angry emoji", "hmph 😡", ExpressionAngry},
		{"emoji alone", "😡", ExpressionAngry},
		{"emoji leading", "😡 alone", ExpressionAngry},
		{"emoji glued to a word", "fine😡", ExpressionAngry},
		{"emoji in punctuation", "(😮)", ExpressionSurprised},
		{"word rule beats later emoji", "great 😡", ExpressionHappy},
		{"neutral", "The train leaves at noon.", ExpressionNeutral},
		{"empty", "", ExpressionNeutral},
		{"whole words only", "Gladiators sadly met", ExpressionNeutral},
		{"stem does not match inflection", "I feel frustrated", ExpressionNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyEmotion(tt.text))
		})
	}
}

func TestClassifyEmotionPrecedence(t *testing.T) {
	// happy beats angry, sad beats surprised, surprised beats angry
	assert.Equal(t, ExpressionHappy, ClassifyEmotion("I'm angry but also happy"))
	assert.Equal(t, ExpressionSad, ClassifyEmotion("wow, I'm sorry"))
	assert.Equal(t, ExpressionSurprised, ClassifyEmotion("grr... wow"))
}

func TestClassifyEmotionDeterministic(t *testing.T) {
	text := "so sad and so mad 😠"
	first := ClassifyEmotion(text)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, ClassifyEmotion(text))
	}
}
