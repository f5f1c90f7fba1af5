package gate

// AAL is an authenticator assurance level.
type AAL string

// Known assurance levels.
const (
	AAL1 AAL = "aal1"
	AAL2 AAL = "aal2"
)

// Levels pairs the session's current level with the level it must reach.
type Levels struct {
	Current  AAL
	Required AAL
}

// State of a request in the session gate.
type State int

// Gate states.
const (
	Unauthenticated State = iota
	BaseAssurance
	StepUpRequired
	FullyAssured
)

func (s State) String() string {
	switch s {
	case BaseAssurance:
		return "base_assurance"
	case StepUpRequired:
		return "step_up_required"
	case FullyAssured:
		return "fully_assured"
	default:
		return "unauthenticated"
	}
}

// Action is what the gate does with a request.
type Action int

// Gate actions.
const (
	RedirectSignIn Action = iota
	RedirectStepUp
	Proceed
)

// Decision is the outcome of Decide.
type Decision struct {
	State  State
	Action Action
}

// currentRank ranks unknown current levels lowest.
func currentRank(a AAL) int {
	switch a {
	case AAL1:
		return 1
	case AAL2:
		return 2
	default:
		return 0
	}
}

// requiredRank ranks unknown required levels highest. An unset requirement
// is the baseline.
func requiredRank(a AAL) int {
	switch a {
	case "", AAL1:
		return 1
	case AAL2:
		return 2
	default:
		return 3
	}
}

// Decide is the pure transition function of the session gate.
func Decide(identityPresent bool, levels Levels) Decision {
	if !identityPresent {
		return Decision{State: Unauthenticated, Action: RedirectSignIn}
	}
	current := currentRank(levels.Current)
	if current == 0 {
		return Decision{State: Unauthenticated, Action: RedirectSignIn}
	}
	required := requiredRank(levels.Required)
	if required > current {
		return Decision{State: StepUpRequired, Action: RedirectStepUp}
	}
	if required > 1 || current > 1 {
		return Decision{State: FullyAssured, Action: Proceed}
	}
	return Decision{State: BaseAssurance, Action: Proceed}
}
