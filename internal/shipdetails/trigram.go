package shipdetails

import "strings"

// companyMatchThreshold is the trigram similarity above which two raw company
// names are considered the same company.
const companyMatchThreshold = 0.9

// trigramSimilarity reproduces pg_trgm semantics: both strings are lowered,
// padded with two leading and one trailing space, cut into trigrams, and the
// Jaccard ratio of the two sets is returned.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for gram := range ta {
		if _, ok := tb[gram]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigrams(value string) map[string]struct{} {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil
	}
	padded := "  " + value + " "
	grams := make(map[string]struct{}, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		grams[padded[i:i+3]] = struct{}{}
	}
	return grams
}
