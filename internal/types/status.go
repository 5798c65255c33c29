package types

// Lifecycle of a match result. Created as running when the match is
// dispatched, then transitions exactly once to complete or failed.
type MatchStatus string

const (
	MatchStatusRunning  MatchStatus = "running"
	MatchStatusComplete MatchStatus = "complete"
	MatchStatusFailed   MatchStatus = "failed"
)

// Role of an uploaded program within a match.
type ProgramRole string

const (
	RoleGenerator ProgramRole = "generator"
	RoleSolver    ProgramRole = "solver"
)

func (r ProgramRole) Valid() bool {
	return r == RoleGenerator || r == RoleSolver
}
