package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Enqueuer hands a job id to the work queue.
type Enqueuer interface {
	PublishJob(ctx context.Context, jobID string) error
}

// TTLReader reports how long a cached summary has left to live.
// ok is false when the entry is gone or the cache cannot be reached.
type TTLReader interface {
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool)
}

// SubmitRequest carries exactly one of URL or Text. A nil pointer means the
// field was not sent, unless the decoded body carried the key with a null or
// non-string value: that still counts as sent, with an empty value.
type SubmitRequest struct {
	URL  *string `json:"url"`
	Text *string `json:"text"`

	urlSent, textSent bool
}

// UnmarshalJSON records key presence separately from the value.
func (r *SubmitRequest) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = SubmitRequest{}
	r.URL, r.urlSent = stringField(raw, "url")
	r.Text, r.textSent = stringField(raw, "text")
	return nil
}

func stringField(raw map[string]json.RawMessage, key string) (*string, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return nil, true
	}
	if s, ok := decoded.(string); ok {
		return &s, true
	}
	return nil, true
}

func (r SubmitRequest) hasURL() bool  { return r.URL != nil || r.urlSent }
func (r SubmitRequest) hasText() bool { return r.Text != nil || r.textSent }

// Service is the submission and query side of the pipeline. It creates jobs
// and reads them back; every later mutation belongs to the worker.
type Service struct {
	repo  *Repo
	queue Enqueuer
	cache TTLReader
	log   zerolog.Logger
}

func NewService(repo *Repo, queue Enqueuer, cache TTLReader, log zerolog.Logger) *Service {
	return &Service{repo: repo, queue: queue, cache: cache, log: log}
}

// ValidateInput checks that exactly one non-blank input is present and
// returns its type together with the trimmed value.
func ValidateInput(req SubmitRequest) (InputType, string, error) {
	switch {
	case req.hasURL() && req.hasText():
		return "", "", ErrBothInputs
	case !req.hasURL() && !req.hasText():
		return "", "", ErrNoInput
	case req.hasURL():
		u := trimmed(req.URL)
		if u == "" {
			return "", "", ErrEmptyURL
		}
		return InputURL, u, nil
	default:
		t := trimmed(req.Text)
		if t == "" {
			return "", "", ErrEmptyText
		}
		return InputText, t, nil
	}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Submit validates the request, stores a queued job and enqueues its id.
// An enqueue failure is logged and swallowed: the job row stays queued and
// the worker's sweeper re-enqueues it later.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	typ, input, err := ValidateInput(req)
	if err != nil {
		return nil, err
	}

	j := &Job{
		ID:        uuid.NewString(),
		InputType: typ,
		InputHash: InputHash(input),
		Status:    StatusQueued,
	}
	if typ == InputURL {
		j.OriginalURL = &input
	} else {
		j.OriginalText = &input
	}

	if err := s.repo.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	if err := s.queue.PublishJob(ctx, j.ID); err != nil {
		s.log.Error().Err(err).Str("job_id", j.ID).Msg("enqueue failed, job left queued for sweep")
	} else {
		s.log.Info().Str("job_id", j.ID).Str("input_type", string(typ)).Msg("job enqueued")
	}
	return j, nil
}
