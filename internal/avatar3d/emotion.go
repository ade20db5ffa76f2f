package avatar3d

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type emotionRule struct {
	expression Expression
	pattern    *regexp.Regexp
}

// Rules are evaluated in order; the first match wins, so a reply that is
// both happy and angry reads as happy.
var emotionRules = []emotionRule{
	{ExpressionHappy, emotionPattern(
		[]string{"happy", "glad", "great", "awesome", "wonderful", "yay", "smile", "cheer", "joy", "delight", "love"},
		[]string{"😊", "😄", "😁", "💖", "🌸"},
	)},
	{ExpressionSad, emotionPattern(
		[]string{"sad", "sorry", "unhappy", "regret", "miss", "lonely", "frown", "down", "blue", "depressed"},
		[]string{"😢", "😭", "☹️"},
	)},
	{ExpressionSurprised, emotionPattern(
		[]string{"surprise", "wow", "amazing", "shocked", "astonish", "incredible", "unbelievable"},
		[]string{"😲", "😮"},
	)},
	{ExpressionAngry, emotionPattern(
		[]string{"angry", "mad", "upset", "annoy", "frustrat", "grr"},
		[]string{"😠", "😡"},
	)},
}

// emotionPattern builds `\b(?:w1|w2)\b|e1|e2`. Words are whole-word
// matches; symbols match anywhere since \b only knows ASCII word runes.
func emotionPattern(words, symbols []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	expr := `\b(?:` + strings.Join(quoted, "|") + `)\b`
	for _, s := range symbols {
		expr += "|" + regexp.QuoteMeta(s)
	}
	return regexp.MustCompile(expr)
}

// ClassifyEmotion picks the expression a reply should be spoken with.
func ClassifyEmotion(text string) Expression {
	// cases.Caser keeps state, so one per call.
	lower := cases.Lower(language.Und).String(text)
	for _, rule := range emotionRules {
		if rule.pattern.MatchString(lower) {
			return rule.expression
		}
	}
	return ExpressionNeutral
}
