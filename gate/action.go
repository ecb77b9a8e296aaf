package gate

// Action describes the kind of operation a driver wants to perform on a module.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Actions lists every action an access-right map may grant, in display order.
var Actions = []Action{ActionRead, ActionWrite, ActionDelete}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}
