package deck

import (
	"unicode"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
)

// furigana splits a spelling/reading pair into ruby pairs by peeling off the
// kana the two share at either end; what remains in the middle is read as a
// whole. Spellings without kanji need no furigana.
func furigana(spelling, reading string) []card.Ruby {
	if reading == "" || reading == spelling || !hasKanji(spelling) {
		return nil
	}
	s, r := []rune(spelling), []rune(reading)

	pre := 0
	for pre < len(s) && pre < len(r) && s[pre] == r[pre] && isKana(s[pre]) {
		pre++
	}
	suf := 0
	for suf < len(s)-pre && suf < len(r)-pre && s[len(s)-1-suf] == r[len(r)-1-suf] && isKana(s[len(s)-1-suf]) {
		suf++
	}

	midS, midR := s[pre:len(s)-suf], r[pre:len(r)-suf]
	if len(midS) == 0 || len(midR) == 0 {
		return nil
	}

	var out []card.Ruby
	if pre > 0 {
		out = append(out, card.Ruby{Base: string(s[:pre]), Reading: string(s[:pre])})
	}
	out = append(out, card.Ruby{Base: string(midS), Reading: string(midR)})
	if suf > 0 {
		tail := string(s[len(s)-suf:])
		out = append(out, card.Ruby{Base: tail, Reading: tail})
	}
	return out
}

func hasKanji(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func isKana(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana)
}
