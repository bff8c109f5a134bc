package encounter

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hollowhost/hollowhost/internal/game/dice"
)

// CombatantSpec is the YAML form of a combatant in a party file.
type CombatantSpec struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Side       string         `yaml:"side"` // "players" | "opponents"
	Stats      map[string]int `yaml:"stats"`
	MaxHP      int            `yaml:"max_hp"`
	Defense    int            `yaml:"defense"`
	Speed      int            `yaml:"speed"`
	Initiative *int           `yaml:"initiative"` // preset; nil rolls
}

// PartyFile is a YAML roster of combatants used to seed an encounter.
type PartyFile struct {
	Name       string          `yaml:"name"`
	Combatants []CombatantSpec `yaml:"combatants"`
}

// LoadParty reads a party roster from path and builds the combatants for a
// new encounter. Every combatant starts at full HP.
//
// Postcondition: Returns at least two combatants on distinct sides, or a
// non-nil error.
func LoadParty(path string) ([]*Combatant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading party file %q: %w", path, err)
	}
	var pf PartyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("parsing party file %q: %w", path, err)
	}

	seen := make(map[string]bool, len(pf.Combatants))
	sides := make(map[Side]bool)
	out := make([]*Combatant, 0, len(pf.Combatants))
	for i, cs := range pf.Combatants {
		if cs.ID == "" {
			return nil, fmt.Errorf("party %q: combatant %d has no id", path, i)
		}
		if seen[cs.ID] {
			return nil, fmt.Errorf("party %q: duplicate combatant id %q", path, cs.ID)
		}
		seen[cs.ID] = true
		if cs.MaxHP <= 0 {
			return nil, fmt.Errorf("party %q: combatant %q: max_hp must be positive", path, cs.ID)
		}
		side, err := parseSide(cs.Side)
		if err != nil {
			return nil, fmt.Errorf("party %q: combatant %q: %w", path, cs.ID, err)
		}
		sides[side] = true

		name := cs.Name
		if name == "" {
			name = cs.ID
		}
		out = append(out, &Combatant{
			ID:               cs.ID,
			Name:             name,
			Side:             side,
			Stats:            dice.Stats(cs.Stats),
			MaxHP:            cs.MaxHP,
			HP:               cs.MaxHP,
			Defense:          cs.Defense,
			Speed:            cs.Speed,
			PresetInitiative: cs.Initiative,
		})
	}
	if len(out) < 2 || len(sides) < 2 {
		return nil, fmt.Errorf("party %q: need at least two combatants on opposing sides", path)
	}
	return out, nil
}

func parseSide(s string) (Side, error) {
	switch s {
	case "players":
		return SidePlayers, nil
	case "opponents":
		return SideOpponents, nil
	default:
		return 0, fmt.Errorf("unknown side %q (want players or opponents)", s)
	}
}
