package backend

import (
	"strings"
	"unicode"
)

// extraction quality heuristics for text pulled out of PDF content streams.
// A page whose extracted text is mostly garbage runes (broken encodings,
// private-use glyphs) is reported invalid so the pipeline can downgrade the
// document status instead of emitting gibberish.

const (
	minPrintableRatio = 0.85
	minWordlikeRatio  = 0.50
)

// textLooksValid reports whether extracted page text is usable. Empty text
// is valid: blank pages are legitimate.
func textLooksValid(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if printableRatio(text) < minPrintableRatio {
		return false
	}
	if wordlikeRatio(text) < minWordlikeRatio {
		return false
	}
	return true
}

// printableRatio returns the ratio of printable characters in text.
// Excludes PUA U+E000-U+F8FF, control chars < U+0020 (except \n\r\t), U+FFFD.
func printableRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	total := 0
	printable := 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	// Private Use Area
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	// Replacement character
	if r == 0xFFFD {
		return true
	}
	// Control chars except whitespace
	if r < 0x0020 && r != '\n' && r != '\r' && r != '\t' {
		return true
	}
	return false
}

// wordlikeRatio returns the ratio of word-like tokens (length 2-15) to total tokens.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := len([]rune(f))
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}
