package semver

// CanHotSwap reports whether a component at current may be replaced in place
// by target. The verdict depends only on the major lifecycle states and on
// whether the major numbers match.
func CanHotSwap(current, target Version) bool {
	ok, _ := SwapDecision(current, target)
	return ok
}

// SwapDecision is CanHotSwap with the reason behind the verdict.
func SwapDecision(current, target Version) (bool, string) {
	sameMajor := current.Major == target.Major
	switch {
	case target.StateMajor == Legacy:
		return true, "legacy target keeps the migration path open"
	case current.StateMajor == Legacy:
		return true, "legacy component may always be replaced"
	case current.StateMajor == Stable && target.StateMajor == Stable:
		if sameMajor {
			return true, "stable to stable within the same major"
		}
		return false, "stable to stable across a breaking major change"
	case current.StateMajor == Stable && target.StateMajor == Experimental:
		return false, "stable component cannot take on experimental risk"
	case current.StateMajor == Experimental && target.StateMajor == Experimental:
		return true, "experimental to experimental"
	}
	return false, "no rule allows " + current.StateMajor.String() + " to " + target.StateMajor.String()
}
