package quad

// Ladder is the ordered list of strategies tried by successive escalation
// steps. Level i uses Ladder[i].
type Ladder []Params

// DefaultLadder starts with dense local quads and moves to sparser star
// subsets at each level.
var DefaultLadder = Ladder{
	{N: 7, F: 1, S: 0},
	{N: 5, F: 3, S: 0},
	{N: 5, F: 6, S: 0},
	{N: 5, F: 12, S: 0},
	{N: 6, F: 10, S: 3},
}

// Levels returns the number of escalation levels.
func (l Ladder) Levels() int { return len(l) }

// At returns the parameters of a level and whether the level exists.
func (l Ladder) At(level int) (Params, bool) {
	if level < 0 || level >= len(l) {
		return Params{}, false
	}
	return l[level], true
}

// Clone returns an independent copy of the ladder.
func (l Ladder) Clone() Ladder {
	return append(Ladder(nil), l...)
}
