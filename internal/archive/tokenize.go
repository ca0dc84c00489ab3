package archive

import "strings"

// Normalize lowercases a single search word so it matches the form used at
// indexing time.
func Normalize(word string) string {
	return strings.ToLower(word)
}

// Tokenize splits text into normalized index terms: maximal runs of
// non-whitespace characters, lowercased. Empty terms never occur.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
