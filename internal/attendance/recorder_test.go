package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var bangkok = time.FixedZone("ICT", 7*3600)

func defaultPolicy() Policy {
	return Policy{Tolerance: 0.5, GraceMinutes: 15, LateCutoff: MustParseClock("08:30")}
}

func at(hms string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", "2026-03-02 "+hms, bangkok)
	if err != nil {
		panic(err)
	}
	return t
}

func subjectSession() Session {
	start := MustParseClock("10:10")
	return Session{Code: "MATH101", Start: &start}
}

func TestComputeStatus_SessionBoundary(t *testing.T) {
	tests := []struct {
		observed string
		want     Status
	}{
		{"10:05:00", StatusPresent},
		{"10:24:59", StatusPresent},
		{"10:25:00", StatusPresent},
		{"10:25:01", StatusLate},
		{"11:00:00", StatusLate},
	}

	for _, tt := range tests {
		t.Run(tt.observed, func(t *testing.T) {
			if got := ComputeStatus(defaultPolicy(), subjectSession(), at(tt.observed)); got != tt.want {
				t.Errorf("ComputeStatus at %s = %s, want %s", tt.observed, got, tt.want)
			}
		})
	}
}

func TestComputeStatus_DailyCutoff(t *testing.T) {
	tests := []struct {
		observed string
		want     Status
	}{
		{"07:45:00", StatusPresent},
		{"08:30:00", StatusPresent},
		{"08:30:01", StatusLate},
		{"13:00:00", StatusLate},
	}

	for _, tt := range tests {
		t.Run(tt.observed, func(t *testing.T) {
			if got := ComputeStatus(defaultPolicy(), Daily(), at(tt.observed)); got != tt.want {
				t.Errorf("ComputeStatus at %s = %s, want %s", tt.observed, got, tt.want)
			}
		})
	}
}

func TestComputeStatus_SubSecondPastDeadlineIsLate(t *testing.T) {
	tests := []struct {
		name     string
		session  Session
		observed time.Time
		want     Status
	}{
		{"daily exact", Daily(), at("08:30:00"), StatusPresent},
		{"daily 400ms past", Daily(), at("08:30:00").Add(400 * time.Millisecond), StatusLate},
		{"subject exact", subjectSession(), at("10:25:00"), StatusPresent},
		{"subject 900ms past", subjectSession(), at("10:25:00").Add(900 * time.Millisecond), StatusLate},
		{"subject 1ns before", subjectSession(), at("10:25:00").Add(-time.Nanosecond), StatusPresent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeStatus(defaultPolicy(), tt.session, tt.observed); got != tt.want {
				t.Errorf("ComputeStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecorder_RecordOncePerSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewRecorder(store, StaticPolicy(defaultPolicy()), WithLocation(bangkok))

	first, err := r.Record(ctx, "6401", subjectSession(), at("10:12:00"))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !first.Created || first.Record.Status != StatusPresent {
		t.Fatalf("expected created present record, got %+v", first)
	}
	if first.Record.Date != "2026-03-02" || first.Record.Session != "MATH101" {
		t.Errorf("unexpected key %+v", first.Record.Key)
	}

	second, err := r.Record(ctx, "6401", subjectSession(), at("10:40:00"))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !second.AlreadyRecorded() {
		t.Fatal("expected AlreadyRecorded")
	}
	if second.Record.Status != StatusPresent || second.Record.ID != first.Record.ID {
		t.Errorf("existing record must be unchanged, got %+v", second.Record)
	}

	// Another session on the same day is a separate key.
	daily, err := r.Record(ctx, "6401", Daily(), at("10:41:00"))
	if err != nil {
		t.Fatal(err)
	}
	if !daily.Created || daily.Record.Status != StatusLate || daily.Record.Session != "DAILY" {
		t.Errorf("expected new late daily record, got %+v", daily)
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 records, got %d", store.Len())
	}
}

func TestRecorder_DateUsesLocation(t *testing.T) {
	r := NewRecorder(NewMemoryStore(), StaticPolicy(defaultPolicy()), WithLocation(bangkok))

	// 18:30 UTC on March 1st is 01:30 on March 2nd in Bangkok.
	utc := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	out, err := r.Record(context.Background(), "6401", Daily(), utc)
	if err != nil {
		t.Fatal(err)
	}
	if out.Record.Date != "2026-03-02" {
		t.Errorf("expected local date 2026-03-02, got %s", out.Record.Date)
	}
}

func TestRecorder_ConcurrentRecordsCreateOne(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewRecorder(store, StaticPolicy(defaultPolicy()), WithLocation(bangkok))

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for iter := 0; iter < 20; iter++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Record(ctx, "6401", Daily(), at("08:00:00"))
			if err != nil {
				t.Error(err)
				return
			}
			if out.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("expected exactly one created record, got %d", created)
	}
}

type switchablePolicy struct {
	mu sync.Mutex
	p  Policy
}

func (s *switchablePolicy) Policy(context.Context) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p, nil
}

func TestRecorder_PolicyReadPerDecision(t *testing.T) {
	ctx := context.Background()
	src := &switchablePolicy{p: defaultPolicy()}
	r := NewRecorder(NewMemoryStore(), src, WithLocation(bangkok))

	out, _ := r.Record(ctx, "A", subjectSession(), at("10:30:00"))
	if out.Record.Status != StatusLate {
		t.Fatalf("expected late with 15 minute grace, got %s", out.Record.Status)
	}

	src.mu.Lock()
	src.p.GraceMinutes = 30
	src.mu.Unlock()

	out, _ = r.Record(ctx, "B", subjectSession(), at("10:30:00"))
	if out.Record.Status != StatusPresent {
		t.Errorf("expected present after grace change, got %s", out.Record.Status)
	}
}

func TestRecorder_RecordManual(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(NewMemoryStore(), StaticPolicy(defaultPolicy()), WithLocation(bangkok))
	day := at("00:00:00")

	out, err := r.RecordManual(ctx, "6401", day, StatusSickLeave, Daily())
	if err != nil {
		t.Fatalf("RecordManual failed: %v", err)
	}
	if !out.Created || out.Record.Status != StatusSickLeave || out.Record.ObservedAt != nil {
		t.Errorf("unexpected outcome %+v", out)
	}
	if out.Record.Source != SourceManual {
		t.Errorf("expected manual source, got %s", out.Record.Source)
	}

	again, err := r.RecordManual(ctx, "6401", day, StatusAbsent, Daily())
	if err != nil {
		t.Fatal(err)
	}
	if again.Created || again.Record.Status != StatusSickLeave {
		t.Errorf("expected existing sick leave untouched, got %+v", again)
	}

	if _, err := r.RecordManual(ctx, "6401", day, StatusLate, Daily()); !errors.Is(err, ErrInvalidManualStatus) {
		t.Errorf("expected ErrInvalidManualStatus, got %v", err)
	}
}

func TestRecorder_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(NewMemoryStore(), StaticPolicy(defaultPolicy()), WithLocation(bangkok))

	out, _ := r.Record(ctx, "6401", Daily(), at("09:00:00"))
	if out.Record.Status != StatusLate {
		t.Fatalf("expected late, got %s", out.Record.Status)
	}

	updated, err := r.UpdateStatus(ctx, out.Record.ID, StatusPresent)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != StatusPresent {
		t.Errorf("expected present, got %s", updated.Status)
	}

	if _, err := r.UpdateStatus(ctx, 9999, StatusPresent); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := r.UpdateStatus(ctx, out.Record.ID, Status("vacation")); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestRecorder_EmptySubject(t *testing.T) {
	r := NewRecorder(NewMemoryStore(), StaticPolicy(defaultPolicy()))
	if _, err := r.Record(context.Background(), "", Daily(), time.Now()); !errors.Is(err, ErrEmptySubject) {
		t.Errorf("expected ErrEmptySubject, got %v", err)
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []Record
}

func (n *recordingNotifier) Notify(_ context.Context, rec Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
}

func TestRecorder_NotifiesOnlyCreated(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	r := NewRecorder(NewMemoryStore(), StaticPolicy(defaultPolicy()), WithNotifier(n), WithLocation(bangkok))

	r.Record(ctx, "6401", Daily(), at("08:00:00"))
	r.Record(ctx, "6401", Daily(), at("08:05:00"))

	if len(n.records) != 1 {
		t.Errorf("expected 1 notification, got %d", len(n.records))
	}
}
