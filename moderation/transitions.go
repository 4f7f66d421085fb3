package moderation

import "github.com/deepshield/deepshield-api/models"

// machine maps a status to the statuses reachable from it. Statuses that
// are valid but absent as keys are terminal.
type machine struct {
	name  string
	edges map[models.FlagStatus][]models.FlagStatus
	known map[models.FlagStatus]bool
}

func newMachine(name string, edges map[models.FlagStatus][]models.FlagStatus) machine {
	known := map[models.FlagStatus]bool{}
	for from, tos := range edges {
		known[from] = true
		for _, to := range tos {
			known[to] = true
		}
	}
	return machine{name: name, edges: edges, known: known}
}

var (
	// FlagMachine governs ContentFlag disposition by administrators
	FlagMachine = newMachine("flag", map[models.FlagStatus][]models.FlagStatus{
		models.StatusPending:   {models.StatusReviewing},
		models.StatusReviewing: {models.StatusResolved, models.StatusDismissed},
	})

	// ItemMachine governs FlaggedItem actions taken from the reviewer queue,
	// where resolve and reject are offered straight from pending
	ItemMachine = newMachine("item", map[models.FlagStatus][]models.FlagStatus{
		models.StatusPending:   {models.StatusReviewing, models.StatusResolved, models.StatusRejected},
		models.StatusReviewing: {models.StatusResolved, models.StatusRejected},
	})
)

// Allows reports whether from -> to is a legal single step
func (m machine) Allows(from, to models.FlagStatus) bool {
	for _, s := range m.edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s
func (m machine) Terminal(s models.FlagStatus) bool {
	_, hasEdges := m.edges[s]
	return m.known[s] && !hasEdges
}

// Valid reports whether s belongs to this machine's status domain
func (m machine) Valid(s models.FlagStatus) bool {
	return m.known[s]
}
