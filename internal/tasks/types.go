package tasks

// Priority orders tasks for scheduling. The numeric values feed the
// initial task truth value (priority/20).
type Priority int

const (
	Low      Priority = 1
	Medium   Priority = 5
	High     Priority = 10
	Critical Priority = 20
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// strength normalizes the priority into a truth-value strength.
func (p Priority) strength() float64 { return float64(p) / 20.0 }

// Status is the task lifecycle state.
//
// Transitions: Pending -> {Active, Completed, Failed, Cancelled};
// Active -> {Completed, Failed, Cancelled}; Active <-> Suspended.
// Completed, Failed and Cancelled are terminal. Completing a pending
// task directly is allowed; a dependency can be resolved without ever
// scheduling it.
type Status int

const (
	Pending Status = iota
	Active
	Completed
	Failed
	Cancelled
	Suspended
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// strength is the truth-value strength mirrored into the store on each
// status transition.
func (s Status) strength() float64 {
	switch s {
	case Pending:
		return 0.2
	case Active:
		return 0.5
	case Completed:
		return 1.0
	case Failed:
		return 0.0
	case Cancelled:
		return 0.1
	case Suspended:
		return 0.3
	default:
		return 0.0
	}
}

// canTransition validates a lifecycle edge.
func canTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	switch from {
	case Pending:
		return to == Active || to == Completed || to == Failed || to == Cancelled
	case Active:
		return to == Completed || to == Failed || to == Cancelled || to == Suspended
	case Suspended:
		return to == Active
	default:
		return false
	}
}
