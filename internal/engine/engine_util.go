package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ErrUnsupportedCommand = errors.New("unsupported command")

// Separators are shown to the guesser from the start and never need guessing.
const separators = " -'"

func NewState(giverID, guesserID string) State {
	return State{
		Phase:     PhaseAwaitingWord,
		GiverID:   giverID,
		GuesserID: guesserID,
		Guessed:   map[string]bool{},
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Fold strips diacritics and lower-cases s, so "É" and "e" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// NormalizeLetter folds a guess and requires exactly one letter a-z.
func NormalizeLetter(letter string) (string, error) {
	l := Fold(strings.TrimSpace(letter))
	if utf8.RuneCountInString(l) != 1 || l[0] < 'a' || l[0] > 'z' {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidLetter, letter)
	}
	return l, nil
}

// NormalizeWord trims, lower-cases and NFC-composes a secret word. Every
// letter must fold to a-z so the word stays guessable with the 26-letter
// alphabet.
func NormalizeWord(word string) (string, error) {
	w := norm.NFC.String(strings.ToLower(strings.TrimSpace(word)))
	if utf8.RuneCountInString(w) < MinWordLength {
		return "", fmt.Errorf("%w: need at least %d characters", apperr.ErrInvalidWord, MinWordLength)
	}
	letters := 0
	for _, r := range w {
		if strings.ContainsRune(separators, r) {
			continue
		}
		if _, ok := foldRune(r); !ok {
			return "", fmt.Errorf("%w: unsupported character %q", apperr.ErrInvalidWord, r)
		}
		letters++
	}
	if letters == 0 {
		return "", fmt.Errorf("%w: no letters", apperr.ErrInvalidWord)
	}
	return w, nil
}

func foldRune(r rune) (byte, bool) {
	f := Fold(string(r))
	if len(f) != 1 || f[0] < 'a' || f[0] > 'z' {
		return 0, false
	}
	return f[0], true
}

func containsLetter(word, letter string) bool {
	for _, r := range word {
		if b, ok := foldRune(r); ok && string(b) == letter {
			return true
		}
	}
	return false
}

func allRevealed(word string, guessed map[string]bool) bool {
	for _, r := range word {
		if b, ok := foldRune(r); ok && !guessed[string(b)] {
			return false
		}
	}
	return true
}

// Masked renders word with unguessed letters replaced by '_'. reveal shows
// every letter.
func Masked(word string, guessed map[string]bool, reveal bool) string {
	var b strings.Builder
	for _, r := range word {
		f, ok := foldRune(r)
		if !ok || reveal || guessed[string(f)] {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// LetterCount returns the number of guessable positions in word.
func LetterCount(word string) int {
	n := 0
	for _, r := range word {
		if _, ok := foldRune(r); ok {
			n++
		}
	}
	return n
}
