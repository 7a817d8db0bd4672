package orders

// transitions is the workflow graph: current status to legal next statuses.
// ARCHIVED has no outgoing edge.
var transitions = map[Status][]Status{
	StatusOrdered:  {StatusPending},
	StatusPending:  {StatusOrdered, StatusReceived},
	StatusReceived: {StatusFinished, StatusAvoir},
	StatusFinished: {StatusReceived, StatusArchived},
	StatusAvoir:    {StatusReceived, StatusFinished},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}
