package effect

// AttackBonus returns the net attack roll modifier from all active effects.
// For stackable effects the penalty is multiplied by the current stack count.
//
// Postcondition: Returns <= 0.
func AttackBonus(s *ActiveSet) int {
	total := 0
	for _, a := range s.effects {
		if a.Def.AttackPenalty > 0 {
			total -= a.Def.AttackPenalty * a.Stacks
		}
	}
	return total
}

// DefenseBonus returns the net defense modifier from all active effects.
//
// Postcondition: Returns <= 0.
func DefenseBonus(s *ActiveSet) int {
	total := 0
	for _, a := range s.effects {
		if a.Def.DefensePenalty > 0 {
			total -= a.Def.DefensePenalty * a.Stacks
		}
	}
	return total
}

// CheckBonus returns the net skill/opposed check modifier from all active effects.
//
// Postcondition: Returns <= 0.
func CheckBonus(s *ActiveSet) int {
	total := 0
	for _, a := range s.effects {
		if a.Def.CheckPenalty > 0 {
			total -= a.Def.CheckPenalty * a.Stacks
		}
	}
	return total
}

// SpeedBonus returns the net movement speed modifier from all active effects.
//
// Postcondition: Returns <= 0.
func SpeedBonus(s *ActiveSet) int {
	total := 0
	for _, a := range s.effects {
		if a.Def.SpeedPenalty > 0 {
			total -= a.Def.SpeedPenalty * a.Stacks
		}
	}
	return total
}

// Incapacitated reports whether any active effect incapacitates the bearer,
// causing its turn to be skipped.
func Incapacitated(s *ActiveSet) bool {
	for _, a := range s.effects {
		if a.Def.Incapacitates {
			return true
		}
	}
	return false
}

// IsActionRestricted reports whether the given action type name is blocked
// by any active effect's RestrictActions list.
func IsActionRestricted(s *ActiveSet, actionType string) bool {
	for _, a := range s.effects {
		for _, r := range a.Def.RestrictActions {
			if r == actionType {
				return true
			}
		}
	}
	return false
}
