package jobs

import "time"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions lists the forward moves allowed out of each status.
// Terminal statuses have no entry.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Pending reports whether the job has not reached a terminal status yet.
func (s Status) Pending() bool {
	return s == StatusQueued || s == StatusProcessing
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// predecessors returns every status that may move to `to`.
func predecessors(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

type InputType string

const (
	InputText InputType = "text"
	InputURL  InputType = "url"
)

type Job struct {
	ID string `gorm:"primaryKey;type:char(36)"`

	InputType    InputType `gorm:"type:varchar(8);not null"`
	OriginalText *string   `gorm:"type:text"`
	OriginalURL  *string   `gorm:"type:text"`

	// sha256 of the trimmed input, hex encoded
	InputHash string `gorm:"type:char(64);index;not null"`

	Status Status `gorm:"type:varchar(16);index:idx_jobs_status_updated,priority:1;not null"`

	// Filled when completed
	Summary *string `gorm:"type:text"`
	// nil while pending
	IsCacheHit *bool

	// Filled when failed
	ErrorMessage *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index:idx_jobs_status_updated,priority:2"`
}

func (Job) TableName() string { return "jobs" }

// Input returns the declared input matching InputType.
func (j *Job) Input() string {
	switch j.InputType {
	case InputText:
		if j.OriginalText != nil {
			return *j.OriginalText
		}
	case InputURL:
		if j.OriginalURL != nil {
			return *j.OriginalURL
		}
	}
	return ""
}

// ProcessingTime is the wall time between submission and the last transition.
func (j *Job) ProcessingTime() time.Duration {
	d := j.UpdatedAt.Sub(j.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}
