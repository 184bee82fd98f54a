package session

// State is where the user stands in the account lifecycle.
type State int

const (
	Anonymous State = iota
	PendingActivation
	Authenticated
	// SessionExpired is transient: it is entered after a terminal refresh
	// failure and immediately coalesces to Anonymous.
	SessionExpired
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case PendingActivation:
		return "pending_activation"
	case Authenticated:
		return "authenticated"
	case SessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// View is a navigable screen.
type View string

const (
	ViewLogin     View = "/login"
	ViewRegister  View = "/register"
	ViewActivate  View = "/activate"
	ViewDashboard View = "/dashboard"
)

// Navigator receives forced navigations: redirects from guards and the
// view changes that follow a transition.
type Navigator interface {
	Navigate(view View)
}

type NavigatorFunc func(view View)

func (f NavigatorFunc) Navigate(view View) {
	f(view)
}

// Transition is reported to observers after every state change.
type Transition struct {
	From  State
	To    State
	Cause error
}
