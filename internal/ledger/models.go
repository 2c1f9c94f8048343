package ledger

import "time"

// Outcome is the recorded result of one dispatch.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// JobRecord indexes a job workspace.
type JobRecord struct {
	ID             string
	Discriminator  string
	Label          string
	StatepointJSON string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Dispatch is one stage action started by a pass.
type Dispatch struct {
	ID           int64
	PassID       string
	JobID        string
	Stage        string
	Outcome      Outcome
	ErrorKind    string
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the action ran.
func (d Dispatch) Duration() time.Duration {
	if d.FinishedAt.Before(d.StartedAt) {
		return 0
	}
	return d.FinishedAt.Sub(d.StartedAt)
}

// Stats summarizes the ledger.
type Stats struct {
	Jobs       int
	Dispatches int
	Failures   int
	Passes     int
	LastPassAt time.Time
}

// StageFailure counts consecutive-history failures of one (job, stage).
type StageFailure struct {
	JobID       string
	Stage       string
	Failures    int
	LastError   string
	LastFailure time.Time
}
