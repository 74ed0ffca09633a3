package cache

import "unicode"

// DiceSimilarity returns the Sørensen-Dice coefficient of the character
// bigrams of a and b, ignoring whitespace. Identical strings score 1;
// strings shorter than two characters otherwise score 0.
func DiceSimilarity(a, b string) float64 {
	ra := stripSpace(a)
	rb := stripSpace(b)

	if string(ra) == string(rb) {
		return 1
	}
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	type bigram [2]rune
	counts := make(map[bigram]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		counts[bigram{ra[i], ra[i+1]}]++
	}

	intersection := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := bigram{rb[i], rb[i+1]}
		if counts[bg] > 0 {
			counts[bg]--
			intersection++
		}
	}

	return 2 * float64(intersection) / float64(len(ra)+len(rb)-2)
}

func stripSpace(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}
