package moderation

import (
	"strings"
	"unicode"
)

var offensiveMarkers = []string{
	"блять", "бля", "хуй", "хуе", "пизд", "ебать", "еба", "ъеб", "сука",
	"пидор", "мудак", "долбоеб", "уебок",
}

// cleanStems are ordinary words that contain a marker ("хлеба", "рубля").
// They are cut out of a word before the markers are searched.
var cleanStems = []string{
	"хлеб", "рубл", "абл", "требл", "оскорбл", "небанальн", "барсук", "себаст",
}

// IsOffensive reports whether text contains profanity: a case-insensitive
// substring match of the markers inside each word, after clean stems are removed.
func IsOffensive(text string) bool {
	lower := strings.ReplaceAll(strings.ToLower(text), "ё", "е")
	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		for _, stem := range cleanStems {
			w = strings.ReplaceAll(w, stem, " ")
		}
		for _, m := range offensiveMarkers {
			if strings.Contains(w, m) {
				return true
			}
		}
	}
	return false
}
