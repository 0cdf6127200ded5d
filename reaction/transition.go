// Package reaction implements the optimistic toggle state machine for
// per-entity user reactions: useful/not-useful feedback on reports and
// like/dislike on posts. The Toggle function is the single source of truth
// for counter math on both axes.
package reaction

import "github.com/c0deZ3R0/incident-sync/incident"

// State is the user's current reaction on one entity.
type State uint8

const (
	// None means the user has no active reaction.
	None State = iota
	// Positive is "useful" on reports, "liked" on posts.
	Positive
	// Negative is "not useful" on reports, "disliked" on posts.
	Negative
)

func (s State) String() string {
	switch s {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "none"
	}
}

// Toggle applies an action to the current state and returns the next state
// together with counter deltas for the positive and negative counters:
//
//   - repeating the current action toggles it off and decrements its counter,
//   - acting from None sets the action and increments its counter,
//   - switching sides moves the vote atomically: the new counter goes up and
//     the old one goes down, never leaving both incremented.
//
// The action must be Positive or Negative; callers floor the resulting
// counters at zero.
func Toggle(current, action State) (next State, deltaPositive, deltaNegative int) {
	if current == action {
		// Toggle off.
		if action == Positive {
			return None, -1, 0
		}
		return None, 0, -1
	}

	if current == None {
		if action == Positive {
			return Positive, 1, 0
		}
		return Negative, 0, 1
	}

	// Direct switch from the other side.
	if action == Positive {
		return Positive, 1, -1
	}
	return Negative, -1, 1
}

// floored adds delta to count and floors the result at zero, preserving the
// non-negative counter invariant even if the cached baseline was already off.
func floored(count, delta int) int {
	if v := count + delta; v > 0 {
		return v
	}
	return 0
}

// feedbackState maps a report feedback value onto the state machine.
func feedbackState(f incident.Feedback) State {
	switch f {
	case incident.FeedbackUseful:
		return Positive
	case incident.FeedbackNotUseful:
		return Negative
	default:
		return None
	}
}

// stateFeedback is the inverse of feedbackState.
func stateFeedback(s State) incident.Feedback {
	switch s {
	case Positive:
		return incident.FeedbackUseful
	case Negative:
		return incident.FeedbackNotUseful
	default:
		return incident.FeedbackNone
	}
}

// postState maps a post's reaction flags onto the state machine. The flags
// are mutually exclusive; liked wins if a corrupt row carries both.
func postState(p *incident.Post) State {
	switch {
	case p.IsLiked:
		return Positive
	case p.IsDisliked:
		return Negative
	default:
		return None
	}
}
