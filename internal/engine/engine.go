package engine

import (
	"fmt"
	"maps"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
)

const (
	MaxIncorrect  = 7
	MinWordLength = 3
)

type Phase string

const (
	PhaseAwaitingWord Phase = "AWAITING_WORD"
	PhaseInProgress   Phase = "IN_PROGRESS"
	PhaseWon          Phase = "WON"
	PhaseLost         Phase = "LOST"
)

func (p Phase) Terminal() bool { return p == PhaseWon || p == PhaseLost }

type Role string

const (
	RoleGiver   Role = "giver"
	RoleGuesser Role = "guesser"
)

type State struct {
	Phase     Phase
	GiverID   string
	GuesserID string
	Word      string          // trimmed and lower-cased, accents kept for display
	Guessed   map[string]bool // folded single letters
	Incorrect int
}

type CommandType string

const (
	CmdSubmitWord  CommandType = "SubmitWord"
	CmdGuessLetter CommandType = "GuessLetter"
)

/*
	CmdSubmitWord  -> EvtWordSubmitted
	CmdGuessLetter -> EvtLetterGuessed -> EvtGameWon | EvtGameLost
	A repeated letter yields no events and leaves the state untouched.
*/

type Command struct {
	Type    CommandType
	ActorID string
	Word    string
	Letter  string
}

type EventType string

const (
	EvtWordSubmitted EventType = "WordSubmitted"
	EvtLetterGuessed EventType = "LetterGuessed"
	EvtGameWon       EventType = "GameWon"
	EvtGameLost      EventType = "GameLost"
)

type Event struct {
	Type      EventType
	Letter    string
	Correct   bool
	Incorrect int
}

// Apply validates cmd against s and returns the resulting events and state.
// On error s is returned unchanged.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdSubmitWord:
		if cmd.ActorID != s.GiverID {
			return nil, s, fmt.Errorf("%w: only the giver submits the word", apperr.ErrUnauthorized)
		}
		if s.Phase != PhaseAwaitingWord {
			return nil, s, fmt.Errorf("%w: word already set", apperr.ErrInvalidState)
		}
		word, err := NormalizeWord(cmd.Word)
		if err != nil {
			return nil, s, err
		}

		newState := s
		newState.Word = word
		newState.Guessed = map[string]bool{}
		newState.Phase = PhaseInProgress
		return []Event{{Type: EvtWordSubmitted}}, newState, nil

	case CmdGuessLetter:
		if cmd.ActorID != s.GuesserID {
			return nil, s, fmt.Errorf("%w: only the guesser guesses", apperr.ErrUnauthorized)
		}
		if s.Phase != PhaseInProgress {
			return nil, s, fmt.Errorf("%w: session is %s", apperr.ErrInvalidState, s.Phase)
		}
		letter, err := NormalizeLetter(cmd.Letter)
		if err != nil {
			return nil, s, err
		}
		if s.Guessed[letter] {
			return nil, s, nil
		}

		newState := s
		newState.Guessed = maps.Clone(s.Guessed)
		if newState.Guessed == nil {
			newState.Guessed = map[string]bool{}
		}
		newState.Guessed[letter] = true

		correct := containsLetter(s.Word, letter)
		if !correct {
			newState.Incorrect++
		}

		events := []Event{{Type: EvtLetterGuessed, Letter: letter, Correct: correct, Incorrect: newState.Incorrect}}

		// Win is checked before loss.
		if allRevealed(newState.Word, newState.Guessed) {
			newState.Phase = PhaseWon
			events = append(events, Event{Type: EvtGameWon, Incorrect: newState.Incorrect})
		} else if newState.Incorrect >= MaxIncorrect {
			newState.Phase = PhaseLost
			events = append(events, Event{Type: EvtGameLost, Incorrect: newState.Incorrect})
		}
		return events, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// RoleOf reports the role userID plays in s.
func RoleOf(s State, userID string) (Role, bool) {
	switch userID {
	case s.GiverID:
		return RoleGiver, true
	case s.GuesserID:
		return RoleGuesser, true
	default:
		return "", false
	}
}
