package queue

// transitions lists, for each target status, the statuses it may be reached
// from.
var transitions = map[Status][]Status{
	StatusCalled:    {StatusWaiting},
	StatusServed:    {StatusCalled},
	StatusExpired:   {StatusWaiting},
	StatusCancelled: {StatusWaiting},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}
