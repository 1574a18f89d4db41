package attendance

import (
	"context"
	"fmt"
	"time"
)

// Store persists attendance records. InsertIfAbsent must be atomic with respect
// to the record key: concurrent inserts for one key create exactly one record.
type Store interface {
	// InsertIfAbsent stores rec unless its key exists. It returns the stored
	// record (the existing one on conflict) and whether it was created.
	InsertIfAbsent(ctx context.Context, rec Record) (Record, bool, error)
	// UpdateStatus overwrites the status of a record. Returns ErrRecordNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id int64, status Status) (Record, error)
	// List returns records matching the filter, ordered by observation time.
	List(ctx context.Context, filter Filter) ([]Record, error)
}

// Notifier is told about newly created records. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, rec Record)
}

// Recorder applies the attendance policy and the once-per-session rule.
type Recorder struct {
	store    Store
	policy   PolicySource
	notifier Notifier
	loc      *time.Location
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithNotifier publishes created records.
func WithNotifier(n Notifier) Option {
	return func(r *Recorder) { r.notifier = n }
}

// WithLocation sets the time zone calendar dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(r *Recorder) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// NewRecorder creates a recorder.
func NewRecorder(store Store, policy PolicySource, opts ...Option) *Recorder {
	r := &Recorder{store: store, policy: policy, loc: time.Local}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Location returns the time zone used for calendar dates.
func (r *Recorder) Location() *time.Location {
	return r.loc
}

// ComputeStatus decides Present or Late. With a session start time the subject is
// late when observed after start plus grace; otherwise when observed after the
// daily cutoff. Equality is on time; any instant past the deadline is late.
func ComputeStatus(p Policy, session Session, observed time.Time) Status {
	var deadline time.Time
	if session.Start != nil {
		deadline = session.Start.On(observed).Add(p.Grace())
	} else {
		deadline = p.LateCutoff.On(observed)
	}
	if observed.After(deadline) {
		return StatusLate
	}
	return StatusPresent
}

// Record registers a recognition of subjectID at observedAt. A second call for
// the same subject, date and session returns the existing record untouched.
func (r *Recorder) Record(ctx context.Context, subjectID string, session Session, observedAt time.Time) (Outcome, error) {
	return r.record(ctx, subjectID, session, observedAt, SourceCamera)
}

// RecordFrom is Record with an explicit source tag.
func (r *Recorder) RecordFrom(ctx context.Context, subjectID string, session Session, observedAt time.Time, source string) (Outcome, error) {
	return r.record(ctx, subjectID, session, observedAt, source)
}

func (r *Recorder) record(ctx context.Context, subjectID string, session Session, observedAt time.Time, source string) (Outcome, error) {
	if subjectID == "" {
		return Outcome{}, ErrEmptySubject
	}
	policy, err := r.policy.Policy(ctx)
	if err != nil {
		return Outcome{}, err
	}

	local := observedAt.In(r.loc)
	rec := Record{
		Key: Key{
			SubjectID: subjectID,
			Date:      local.Format(DateLayout),
			Session:   session.ID(),
		},
		ObservedAt: &local,
		Status:     ComputeStatus(policy, session, local),
		Source:     source,
	}
	return r.insert(ctx, rec)
}

// RecordManual enters an absence or leave for a day. The once-per-session rule
// applies: an existing record for the key is left untouched.
func (r *Recorder) RecordManual(ctx context.Context, subjectID string, date time.Time, status Status, session Session) (Outcome, error) {
	if subjectID == "" {
		return Outcome{}, ErrEmptySubject
	}
	if !status.Manual() {
		return Outcome{}, fmt.Errorf("%w: %s", ErrInvalidManualStatus, status)
	}

	rec := Record{
		Key: Key{
			SubjectID: subjectID,
			Date:      date.In(r.loc).Format(DateLayout),
			Session:   session.ID(),
		},
		Status: status,
		Source: SourceManual,
	}
	return r.insert(ctx, rec)
}

func (r *Recorder) insert(ctx context.Context, rec Record) (Outcome, error) {
	stored, created, err := r.store.InsertIfAbsent(ctx, rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("record attendance for %s: %w", rec.SubjectID, err)
	}
	if created && r.notifier != nil {
		r.notifier.Notify(ctx, stored)
	}
	return Outcome{Created: created, Record: stored}, nil
}

// UpdateStatus corrects the status of an existing record.
func (r *Recorder) UpdateStatus(ctx context.Context, id int64, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.store.UpdateStatus(ctx, id, status)
}

// List returns stored records.
func (r *Recorder) List(ctx context.Context, filter Filter) ([]Record, error) {
	return r.store.List(ctx, filter)
}

// Today returns the calendar date of now in the recorder's time zone.
func (r *Recorder) Today(now time.Time) string {
	return now.In(r.loc).Format(DateLayout)
}
