package hub

import "github.com/DoyleJ11/hangman-backend/internal/engine"

type Roles struct {
	Giver   string
	Guesser string
}

// AssignRoles is a pure function of the pair: the lexicographically smaller
// id gives the word. Both clients can compute it without asking the server.
func AssignRoles(a, b string) Roles {
	if b < a {
		a, b = b, a
	}
	return Roles{Giver: a, Guesser: b}
}

func (r Roles) RoleOf(userID string) (engine.Role, bool) {
	switch userID {
	case r.Giver:
		return engine.RoleGiver, true
	case r.Guesser:
		return engine.RoleGuesser, true
	default:
		return "", false
	}
}

func pairKey(r Roles) string { return r.Giver + "|" + r.Guesser }
