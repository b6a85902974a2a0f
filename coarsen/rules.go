package coarsen

import (
	"fmt"
	"slices"
	"strings"
)

// Rule selects the representative label of a block.
type Rule uint8

const (
	// Mode picks the most frequent label in a block, breaking ties with the lowest label.
	Mode Rule = iota

	// ModeNonzero is like Mode but ignores background voxels.  A block made only of
	// background reduces to background.
	ModeNonzero

	// FirstNonzero picks the first non-background label in block scan order, x fastest,
	// then y, then z.  A block made only of background reduces to background.
	FirstNonzero
)

// Rules lists all reduction rules.
var Rules = []Rule{Mode, ModeNonzero, FirstNonzero}

func (r Rule) String() string {
	switch r {
	case Mode:
		return "mode"
	case ModeNonzero:
		return "mode-nonzero"
	case FirstNonzero:
		return "first-nonzero"
	default:
		return fmt.Sprintf("unknown rule %d", uint8(r))
	}
}

// ParseRule returns the Rule for a name like "mode".  An empty string gives Mode.
func ParseRule(s string) (Rule, error) {
	switch strings.ToLower(s) {
	case "", "mode":
		return Mode, nil
	case "mode-nonzero", "modenonzero", "mode_nonzero":
		return ModeNonzero, nil
	case "first-nonzero", "firstnonzero", "first_nonzero":
		return FirstNonzero, nil
	default:
		return Mode, fmt.Errorf("unknown reduction rule %q", s)
	}
}

// reduce returns the representative label of the block, which holds the block's
// labels in scan order.  The block slice may be reordered.
func (r Rule) reduce(block []int32, background int32) int32 {
	switch r {
	case FirstNonzero:
		for _, lbl := range block {
			if lbl != background {
				return lbl
			}
		}
		return background
	case ModeNonzero:
		return mostFrequent(block, background, true)
	default:
		return mostFrequent(block, background, false)
	}
}

// mostFrequent sorts the block and returns the label with the longest run.  Since
// labels are visited in ascending order and only a strictly longer run replaces the
// winner, ties go to the lowest label.
func mostFrequent(block []int32, background int32, skipBackground bool) int32 {
	slices.Sort(block)
	winner := background
	var winnerVotes int
	for i := 0; i < len(block); {
		lbl := block[i]
		j := i + 1
		for j < len(block) && block[j] == lbl {
			j++
		}
		if !(skipBackground && lbl == background) && j-i > winnerVotes {
			winner = lbl
			winnerVotes = j - i
		}
		i = j
	}
	return winner
}
