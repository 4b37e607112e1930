package domain

// RunStatus is the lifecycle status of a backend run.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunExpired    RunStatus = "expired"
)

// Pending reports whether the run has not reached a terminal status yet.
func (s RunStatus) Pending() bool {
	return s == RunQueued || s == RunInProgress
}

// Run is one backend execution of the assistant against a thread.
type Run struct {
	ID     string
	Status RunStatus
}

// ThreadMessage is a message on a backend thread. Text keeps the text
// segments in the order the backend returned them.
type ThreadMessage struct {
	ID   string
	Role string
	Text []string
}
