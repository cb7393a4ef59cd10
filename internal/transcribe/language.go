package transcribe

import (
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Language codes used throughout the gateway. They match the whisper
// language-hint values.
const (
	LangEnglish = "en"
	LangBangla  = "bn"
)

// DetectLanguage classifies text as Bangla or English.
//
// Bengali script is unambiguous, so a script scan decides first: if any rune
// falls in the Bengali Unicode block the text is Bangla. Otherwise whatlanggo
// decides, defaulting to English for short or inconclusive input. Empty text
// returns "".
func DetectLanguage(text string) string {
	if text == "" {
		return ""
	}
	for _, r := range text {
		if unicode.Is(unicode.Bengali, r) {
			return LangBangla
		}
	}
	if whatlanggo.Detect(text).Lang == whatlanggo.Ben {
		return LangBangla
	}
	return LangEnglish
}
