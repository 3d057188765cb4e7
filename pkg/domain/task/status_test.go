package task

import (
	"encoding/json"
	"testing"
)

func TestStatus_IsValid(t *testing.T) {
	for _, s := range AllStatuses() {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
	}
	for _, s := range []Status{"", "pending", "archived"} {
		if s.IsValid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  Status
		to    Status
		canDo bool
	}{
		{StatusTodo, StatusFocused, true},
		{StatusTodo, StatusInProgress, true},
		{StatusTodo, StatusDone, true},
		{StatusTodo, StatusArchivedDone, false},
		{StatusFocused, StatusFocused, false},
		{StatusFocused, StatusDimmed, true},
		{StatusInProgress, StatusFocused, true},
		{StatusInProgress, StatusTodo, false},
		{StatusBlocked, StatusDone, false},
		{StatusBlocked, StatusArchivedBlocked, true},
		{StatusBlocked, StatusArchivedDimmed, false},
		{StatusDimmed, StatusDone, false},
		{StatusDimmed, StatusArchivedDimmed, true},
		{StatusDone, StatusArchivedDone, true},
		{StatusDone, StatusInProgress, false},
		{StatusDone, StatusTodo, false},
		{StatusArchivedDone, StatusTodo, false},
		{StatusArchivedBlocked, StatusBlocked, false},
		{Status("bogus"), StatusTodo, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.canDo {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.canDo)
			}
		})
	}
}

func TestStatus_ArchivedStatesAreTerminal(t *testing.T) {
	for _, s := range AllStatuses() {
		if !s.IsArchived() {
			continue
		}
		if got := s.ValidTransitions(); len(got) != 0 {
			t.Errorf("%s has outgoing transitions %v", s, got)
		}
	}
}

func TestStatus_ArchiveTarget(t *testing.T) {
	tests := map[Status]Status{
		StatusDone:    StatusArchivedDone,
		StatusBlocked: StatusArchivedBlocked,
		StatusDimmed:  StatusArchivedDimmed,
	}
	for from, want := range tests {
		got, ok := from.ArchiveTarget()
		if !ok || got != want {
			t.Errorf("ArchiveTarget(%s) = %s, %v", from, got, ok)
		}
	}
	if _, ok := StatusTodo.ArchiveTarget(); ok {
		t.Error("todo should not be archivable")
	}
}

func TestStatus_JSON(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`"in_progress"`), &s); err != nil {
		t.Fatal(err)
	}
	if s != StatusInProgress {
		t.Errorf("got %s", s)
	}
	if err := json.Unmarshal([]byte(`"nope"`), &s); err == nil {
		t.Error("expected error for unknown status")
	}
	data, _ := json.Marshal(StatusArchivedDone)
	if string(data) != `"archived_done"` {
		t.Errorf("marshal = %s", data)
	}
}

func TestPriority_Ordering(t *testing.T) {
	if !PriorityCritical.IsHigherThan(PriorityHigh) || !PriorityHigh.IsHigherThan(PriorityMedium) || !PriorityMedium.IsHigherThan(PriorityLow) {
		t.Error("priority ordering broken")
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("expected error")
	}
}

func TestNearestPoints(t *testing.T) {
	tests := []struct {
		raw  float64
		want int
	}{
		{-4, 1},
		{0, 1},
		{1.4, 1},
		{2.5, 2},
		{4, 3},
		{4.1, 5},
		{10, 8},
		{11, 13},
		{40, 21},
	}
	for _, tt := range tests {
		if got := NearestPoints(tt.raw); got != tt.want {
			t.Errorf("NearestPoints(%v) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestIsAllowedPoints(t *testing.T) {
	for n, want := range map[int]bool{0: false, 1: true, 4: false, 13: true, 21: true, 34: false} {
		if got := IsAllowedPoints(n); got != want {
			t.Errorf("IsAllowedPoints(%d) = %v, want %v", n, got, want)
		}
	}
}
