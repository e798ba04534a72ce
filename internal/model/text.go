package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and strips diacritics so "Kilométrage" and
// "kilometrage" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return cases.Fold().String(strings.TrimSpace(folded))
}

var titleCaser = cases.Title(language.Und)

// titleName title-cases each word of a make or model name, leaving short
// all-caps tokens (BMW, GTI, A4) untouched.
func titleName(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if isAcronym(f) {
			continue
		}
		fields[i] = titleCaser.String(f)
	}
	return strings.Join(fields, " ")
}

func isAcronym(s string) bool {
	letters := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters <= 4
}
