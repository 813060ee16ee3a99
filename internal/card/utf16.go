package card

import (
	"fmt"
	"unicode/utf8"
)

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// SplitUTF16 splits s at the given UTF-16 offset.
// It fails when the offset is out of range or falls inside a surrogate pair.
func SplitUTF16(s string, at int) (string, string, error) {
	if at < 0 {
		return "", "", fmt.Errorf("offset %d out of range", at)
	}
	units := 0
	for i, r := range s {
		if units == at {
			return s[:i], s[i:], nil
		}
		units += runeUnits(r)
		if units > at {
			return "", "", fmt.Errorf("offset %d splits a surrogate pair", at)
		}
	}
	if units == at {
		return s, "", nil
	}
	return "", "", fmt.Errorf("offset %d out of range (length %d)", at, units)
}

// SliceUTF16 returns s[start:end) in UTF-16 coordinates.
func SliceUTF16(s string, start, end int) (string, error) {
	_, tail, err := SplitUTF16(s, start)
	if err != nil {
		return "", err
	}
	head, _, err := SplitUTF16(tail, end-start)
	if err != nil {
		return "", err
	}
	return head, nil
}

// RuneToUTF16Offsets maps every rune index of s (plus the end) to its UTF-16 offset.
func RuneToUTF16Offsets(s string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(s)+1)
	units := 0
	for _, r := range s {
		offsets = append(offsets, units)
		units += runeUnits(r)
	}
	return append(offsets, units)
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
