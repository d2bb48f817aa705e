package gateway

import (
	"fmt"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Reader derives hiragana readings for Japanese text with the kagome
// morphological analyzer. It backfills the reading annotation when the vision
// model omits one.
type Reader struct {
	t *tokenizer.Tokenizer
}

// NewReader creates a Reader with the bundled IPA dictionary.
func NewReader() (*Reader, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	return &Reader{t: t}, nil
}

// Reading returns the hiragana reading of text. Tokens the dictionary does
// not know keep their surface form, so the result is always usable as an
// annotation even for mixed or unusual input.
func (r *Reader) Reading(text string) string {
	var b strings.Builder
	for _, token := range r.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY {
			continue
		}

		// IPA feature 7 is the katakana pronunciation; "*" means unknown.
		features := token.Features()
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}

		if reading == "" {
			b.WriteString(token.Surface)
			continue
		}
		b.WriteString(toHiragana(reading))
	}
	return b.String()
}

// toHiragana converts katakana runes to their hiragana equivalents, leaving
// everything else untouched.
func toHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'ァ' && r <= 'ヶ' {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}
