// Package games carries the per-game rule set as a closed list of variants.
// Anything game-dependent (stages, access codes, inactivity thresholds) lives
// here; an unknown game name means the tournament cannot be set up.
package games

import (
	"fmt"
	"time"

	"atos/internal/domain"
)

// Game is one supported game's rule set.
type Game struct {
	Name         string
	Starters     []string
	Counterpicks []string
	// AccessArity is how many access codes a stream operator must provide
	// (arena ID + password for Ultimate, host code only for Project+).
	AccessArity int
	// StaleAfter / StaleAfterTop8 are how long a set may stay underway
	// before the inactivity pass warns it ((max game time * max games) + 7).
	StaleAfter     time.Duration
	StaleAfterTop8 time.Duration
}

var ultimate = &Game{
	Name: "Super Smash Bros. Ultimate",
	Starters: []string{
		"Battlefield", "Final Destination", "Small Battlefield", "Pokémon Stadium 2", "Smashville",
	},
	Counterpicks:   []string{"Kalos Pokémon League", "Town and City"},
	AccessArity:    2,
	StaleAfter:     28 * time.Minute,
	StaleAfterTop8: 42 * time.Minute,
}

var projectPlus = &Game{
	Name: "Project+",
	Starters: []string{
		"Battlefield", "Final Destination", "Pokémon Stadium 2", "Smashville", "Yoshi's Story",
	},
	Counterpicks:   []string{"Warioware", "Dreamland", "Fountain of Dreams"},
	AccessArity:    1,
	StaleAfter:     31 * time.Minute,
	StaleAfterTop8: 47 * time.Minute,
}

var registry = map[string]*Game{
	ultimate.Name:    ultimate,
	projectPlus.Name: projectPlus,
}

// Lookup resolves a game by the name the bracket service reports.
func Lookup(name string) (*Game, error) {
	g, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("games: %q: %w", name, domain.ErrUnknownGame)
	}
	return g, nil
}

// StaleThreshold returns the inactivity threshold for a set of the game.
func (g *Game) StaleThreshold(top8 bool) time.Duration {
	if top8 {
		return g.StaleAfterTop8
	}
	return g.StaleAfter
}

// FormatAccess renders the operator's access codes for players.
func (g *Game) FormatAccess(access []string) string {
	switch {
	case len(access) == 0:
		return "N/A"
	case g.AccessArity == 2 && len(access) >= 2:
		return fmt.Sprintf(":arrow_forward: **ID** : `%s`\n:arrow_forward: **MDP** : `%s`", access[0], access[1])
	default:
		return fmt.Sprintf(":arrow_forward: **Code** : `%s`", access[0])
	}
}

// ValidateAccess checks the arity of the operator-supplied access codes.
func (g *Game) ValidateAccess(access []string) error {
	if len(access) != g.AccessArity {
		return fmt.Errorf("games: %d code(s) attendu(s): %w", g.AccessArity, domain.ErrBadStreamAccess)
	}
	return nil
}
