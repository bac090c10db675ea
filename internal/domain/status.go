package domain

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
)

var known = map[Status]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
}

// IsKnown reports whether s is one of the lifecycle statuses.
func IsKnown(s Status) bool { return known[s] }

// CanMoveTo reports whether a status write to target is allowed.
// pending is initial only: nothing moves a line back to it. Values outside
// the lifecycle are not rejected here, admin writes are unchecked.
func CanMoveTo(target Status) bool {
	return target != "" && target != StatusPending
}

// Fulfilled lists the statuses counted by the admin orders report.
var Fulfilled = []Status{StatusProcessing, StatusShipped, StatusDelivered}

func (s Status) IsFulfilled() bool {
	for _, f := range Fulfilled {
		if s == f {
			return true
		}
	}
	return false
}
