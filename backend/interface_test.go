package backend

import (
	"testing"
	"time"
)

func TestPriorityRank(t *testing.T) {
	if !(PriorityHigh.Rank() < PriorityMedium.Rank() && PriorityMedium.Rank() < PriorityLow.Rank()) {
		t.Fatalf("priority ranks not ordered: high=%d medium=%d low=%d",
			PriorityHigh.Rank(), PriorityMedium.Rank(), PriorityLow.Rank())
	}
	if Priority("urgent").Valid() {
		t.Error("unknown priority should not be valid")
	}
}

func TestParsePriorityAndCategory(t *testing.T) {
	if p, err := ParsePriority(" HIGH "); err != nil || p != PriorityHigh {
		t.Errorf("ParsePriority(HIGH) = %q, %v", p, err)
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("ParsePriority(urgent) should fail")
	}
	if c, err := ParseCategory("Study"); err != nil || c != CategoryStudy {
		t.Errorf("ParseCategory(Study) = %q, %v", c, err)
	}
	if _, err := ParseCategory("errands"); err == nil {
		t.Error("ParseCategory(errands) should fail")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2026-01-15T09:30:00Z", true, time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)},
		{"2026-01-15T09:30:00", true, time.Date(2026, 1, 15, 9, 30, 0, 0, time.Local)},
		{"2026-01-15T09:30:00.123456", true, time.Date(2026, 1, 15, 9, 30, 0, 123456000, time.Local)},
		{"2026-01-15 09:30", true, time.Date(2026, 1, 15, 9, 30, 0, 0, time.Local)},
		{"2026-01-15", true, time.Date(2026, 1, 15, 0, 0, 0, 0, time.Local)},
		{"", false, time.Time{}},
		{"next tuesday", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromRemote(t *testing.T) {
	updated := "2026-01-02T10:00:00"
	r := RemoteTask{
		ID:        "abc",
		Title:     "Pay rent",
		DueDate:   "2026-01-05T09:00:00",
		Priority:  "High",
		Category:  "personal",
		Completed: true,
		CreatedAt: "2026-01-01T08:00:00",
		UpdatedAt: &updated,
	}
	task := FromRemote(r)
	if task.ID != "abc" || task.Title != "Pay rent" || !task.Completed {
		t.Errorf("unexpected translation: %+v", task)
	}
	if task.Priority != PriorityHigh || task.Category != CategoryPersonal {
		t.Errorf("priority/category = %q/%q", task.Priority, task.Category)
	}
	if !task.DueDate.Equal(time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)) {
		t.Errorf("DueDate = %v", task.DueDate)
	}
	if task.UpdatedAt == nil {
		t.Error("UpdatedAt should be set")
	}

	r.DueDate = "garbage"
	if FromRemote(r).HasDueDate() {
		t.Error("unparseable due date should translate to no due date")
	}
}

func TestSurrogateIDStableAndDistinct(t *testing.T) {
	r := RemoteTask{Title: "Read", DueDate: "2026-01-05", CreatedAt: "2026-01-01T00:00:00"}
	a := SurrogateID(r, 0)
	if a != SurrogateID(r, 0) {
		t.Error("surrogate id should be deterministic")
	}
	if a == SurrogateID(r, 1) {
		t.Error("identical records at different occurrences must get different ids")
	}
	other := r
	other.Title = "Write"
	if a == SurrogateID(other, 0) {
		t.Error("different records must get different ids")
	}
}

func TestToRemoteInputCarriesReminderHandle(t *testing.T) {
	task := Task{
		Title:          "Pay rent",
		DueDate:        time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local),
		Priority:       PriorityHigh,
		Category:       CategoryPersonal,
		ReminderHandle: "h-1",
	}
	in := ToRemoteInput(task)
	if in.DueDate != "2026-01-05T09:00:00" {
		t.Errorf("DueDate = %q", in.DueDate)
	}
	if in.NotificationID == nil || *in.NotificationID != "h-1" {
		t.Errorf("NotificationID = %v, want h-1", in.NotificationID)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	orig := []Task{{ID: "1", UpdatedAt: &now}}
	c := Clone(orig)
	c[0].ID = "2"
	*c[0].UpdatedAt = now.Add(time.Hour)
	if orig[0].ID != "1" || !orig[0].UpdatedAt.Equal(now) {
		t.Error("Clone shares state with its input")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) should be nil")
	}
}
