package models

// Phase is the lifecycle position of the session state machine.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseHydrating       Phase = "hydrating"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// AuthState is a snapshot of the session. User and Tokens are either both
// set or both nil.
type AuthState struct {
	Phase  Phase
	User   *User
	Tokens *TokenPair
}

func (s AuthState) IsAuthenticated() bool {
	return s.User != nil && s.Tokens != nil
}

// IsLoading is true only while the stored session is being restored.
func (s AuthState) IsLoading() bool {
	return s.Phase == PhaseHydrating
}

// Clone returns a deep copy so subscribers cannot mutate shared records.
func (s AuthState) Clone() AuthState {
	out := AuthState{Phase: s.Phase}
	out.User = s.User.Clone()
	if s.Tokens != nil {
		t := *s.Tokens
		out.Tokens = &t
	}
	return out
}
