package model

// transitions lists the allowed status changes. Anything absent is rejected.
var transitions = map[AccountStatus][]AccountStatus{
	StatusPendingApproval: {StatusActive, StatusRejected},
}

// CanTransition reports whether an account may move from one status to another
func CanTransition(from, to AccountStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusActive, StatusSuspended, StatusRejected:
		return true
	}
	return false
}
