package engine

import (
	"errors"
	"testing"

	"github.com/DoyleJ11/hangman-backend/internal/apperr"
)

const (
	giver   = "alice"
	guesser = "bob"
)

func inProgress(word string) State {
	s := NewState(giver, guesser)
	s.Phase = PhaseInProgress
	s.Word = word
	return s
}

func guess(t *testing.T, s State, letter string) ([]Event, State) {
	t.Helper()
	events, next, err := Apply(s, Command{Type: CmdGuessLetter, ActorID: guesser, Letter: letter})
	if err != nil {
		t.Fatalf("guess %q: unexpected err %v", letter, err)
	}
	return events, next
}

func TestSubmitWord(t *testing.T) {
	cases := []struct {
		name    string
		actor   string
		word    string
		wantErr error
		want    string
	}{
		{name: "giver submits", actor: giver, word: "  Chaise ", want: "chaise"},
		{name: "accents kept", actor: giver, word: "Été", want: "été"},
		{name: "decomposed accents composed", actor: giver, word: "Cafe\u0301", want: "caf\u00e9"},
		{name: "compound word", actor: giver, word: "pomme-de-terre", want: "pomme-de-terre"},
		{name: "guesser cannot submit", actor: guesser, word: "chaise", wantErr: apperr.ErrUnauthorized},
		{name: "too short after trim", actor: giver, word: "  ab  ", wantErr: apperr.ErrInvalidWord},
		{name: "digits rejected", actor: giver, word: "abc1", wantErr: apperr.ErrInvalidWord},
		{name: "unfoldable letter rejected", actor: giver, word: "straße", wantErr: apperr.ErrInvalidWord},
		{name: "separators only", actor: giver, word: "- -", wantErr: apperr.ErrInvalidWord},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState(giver, guesser)
			events, next, err := Apply(s, Command{Type: CmdSubmitWord, ActorID: tc.actor, Word: tc.word})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				if next.Phase != PhaseAwaitingWord || next.Word != "" {
					t.Fatalf("state mutated on error: %+v", next)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if next.Word != tc.want {
				t.Fatalf("word: got %q, want %q", next.Word, tc.want)
			}
			if next.Phase != PhaseInProgress {
				t.Fatalf("phase: got %v, want %v", next.Phase, PhaseInProgress)
			}
			if !ContainsEvent(events, EvtWordSubmitted) {
				t.Fatalf("expected EvtWordSubmitted")
			}
		})
	}
}

func TestSubmitWord_OnlyOnce(t *testing.T) {
	s := inProgress("chaise")
	_, next, err := Apply(s, Command{Type: CmdSubmitWord, ActorID: giver, Word: "table"})
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
	if next.Word != "chaise" {
		t.Fatalf("word overwritten: %q", next.Word)
	}
}

func TestGuess_Validation(t *testing.T) {
	cases := []struct {
		name    string
		setup   State
		cmd     Command
		wantErr error
	}{
		{
			name:    "giver cannot guess",
			setup:   inProgress("chaise"),
			cmd:     Command{Type: CmdGuessLetter, ActorID: giver, Letter: "c"},
			wantErr: apperr.ErrUnauthorized,
		},
		{
			name:    "stranger cannot guess",
			setup:   inProgress("chaise"),
			cmd:     Command{Type: CmdGuessLetter, ActorID: "mallory", Letter: "c"},
			wantErr: apperr.ErrUnauthorized,
		},
		{
			name:    "no word yet",
			setup:   NewState(giver, guesser),
			cmd:     Command{Type: CmdGuessLetter, ActorID: guesser, Letter: "c"},
			wantErr: apperr.ErrInvalidState,
		},
		{
			name:    "two letters",
			setup:   inProgress("chaise"),
			cmd:     Command{Type: CmdGuessLetter, ActorID: guesser, Letter: "ch"},
			wantErr: apperr.ErrInvalidLetter,
		},
		{
			name:    "digit",
			setup:   inProgress("chaise"),
			cmd:     Command{Type: CmdGuessLetter, ActorID: guesser, Letter: "7"},
			wantErr: apperr.ErrInvalidLetter,
		},
		{
			name:    "unsupported command",
			setup:   inProgress("chaise"),
			cmd:     Command{Type: "Replay", ActorID: guesser},
			wantErr: ErrUnsupportedCommand,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(tc.setup, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestGuess_WinWithNoMistakes(t *testing.T) {
	s := NewState(giver, guesser)
	_, s, err := Apply(s, Command{Type: CmdSubmitWord, ActorID: giver, Word: "chaise"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	var events []Event
	for _, l := range []string{"e", "s", "i", "a", "h", "c"} {
		events, s = guess(t, s, l)
	}

	if s.Phase != PhaseWon {
		t.Fatalf("want WON, got %v", s.Phase)
	}
	if s.Incorrect != 0 {
		t.Fatalf("want 0 incorrect, got %d", s.Incorrect)
	}
	if !ContainsEvent(events, EvtGameWon) {
		t.Fatalf("expected EvtGameWon on last guess")
	}
}

func TestGuess_LoseAfterSevenMisses(t *testing.T) {
	s := inProgress("chaise")
	for _, l := range []string{"b", "d", "f", "g", "j", "k"} {
		_, s = guess(t, s, l)
		if s.Phase != PhaseInProgress {
			t.Fatalf("ended early after %q: %v", l, s.Phase)
		}
	}
	events, s := guess(t, s, "l")
	if s.Phase != PhaseLost || s.Incorrect != MaxIncorrect {
		t.Fatalf("want LOST with %d incorrect, got %v/%d", MaxIncorrect, s.Phase, s.Incorrect)
	}
	if !ContainsEvent(events, EvtGameLost) {
		t.Fatalf("expected EvtGameLost")
	}

	_, after, err := Apply(s, Command{Type: CmdGuessLetter, ActorID: guesser, Letter: "c"})
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState after loss, got %v", err)
	}
	if after.Guessed["c"] {
		t.Fatalf("guess applied after loss")
	}
}

func TestGuess_RepeatIsNoop(t *testing.T) {
	s := inProgress("chaise")
	_, s = guess(t, s, "z")
	events, again := guess(t, s, "Z")

	if len(events) != 0 {
		t.Fatalf("repeat guess emitted %v", events)
	}
	if again.Incorrect != 1 || again.Phase != PhaseInProgress {
		t.Fatalf("repeat guess changed state: %+v", again)
	}
}

func TestGuess_AccentFolding(t *testing.T) {
	s := inProgress("été")
	events, s := guess(t, s, "e")
	if !events[0].Correct {
		t.Fatalf("expected 'e' to match 'é'")
	}
	if got := Masked(s.Word, s.Guessed, false); got != "é_é" {
		t.Fatalf("masked: got %q, want %q", got, "é_é")
	}
	_, s = guess(t, s, "t")
	if s.Phase != PhaseWon {
		t.Fatalf("want WON, got %v", s.Phase)
	}
}

func TestGuess_DecomposedWordPlays(t *testing.T) {
	_, s, err := Apply(NewState(giver, guesser), Command{Type: CmdSubmitWord, ActorID: giver, Word: "cafe\u0301"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, l := range []string{"c", "a", "f"} {
		_, s = guess(t, s, l)
	}
	if got := Masked(s.Word, s.Guessed, false); got != "caf_" {
		t.Fatalf("masked: got %q, want %q", got, "caf_")
	}
	_, s = guess(t, s, "e\u0301")
	if s.Phase != PhaseWon {
		t.Fatalf("want WON, got %v", s.Phase)
	}
}

func TestGuess_AccentedGuessFolds(t *testing.T) {
	s := inProgress("chaise")
	events, _ := guess(t, s, "É")
	if events[0].Letter != "e" || !events[0].Correct {
		t.Fatalf("expected folded correct guess, got %+v", events[0])
	}
}

func TestGuess_DoesNotAliasPreviousState(t *testing.T) {
	s := inProgress("chaise")
	_, s1 := guess(t, s, "c")
	_, _ = guess(t, s1, "h")
	if s1.Guessed["h"] {
		t.Fatalf("later guess leaked into earlier state")
	}
}

func TestMasked(t *testing.T) {
	cases := []struct {
		word    string
		guessed map[string]bool
		reveal  bool
		want    string
	}{
		{"chaise", map[string]bool{}, false, "______"},
		{"chaise", map[string]bool{"a": true, "e": true}, false, "__a__e"},
		{"pomme-de-terre", map[string]bool{"e": true}, false, "____e-_e-_e__e"},
		{"chaise", map[string]bool{}, true, "chaise"},
	}
	for _, tc := range cases {
		if got := Masked(tc.word, tc.guessed, tc.reveal); got != tc.want {
			t.Fatalf("Masked(%q): got %q, want %q", tc.word, got, tc.want)
		}
	}
}

func TestRoleOf(t *testing.T) {
	s := NewState(giver, guesser)
	if r, ok := RoleOf(s, giver); !ok || r != RoleGiver {
		t.Fatalf("giver role: got %v %v", r, ok)
	}
	if r, ok := RoleOf(s, guesser); !ok || r != RoleGuesser {
		t.Fatalf("guesser role: got %v %v", r, ok)
	}
	if _, ok := RoleOf(s, "mallory"); ok {
		t.Fatalf("stranger should have no role")
	}
}
