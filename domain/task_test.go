package domain

import (
	"testing"
	"time"
)

func datePtr(s string) *Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestPriorityRank(t *testing.T) {
	if PriorityHigh.Rank() != 3 || PriorityMedium.Rank() != 2 || PriorityLow.Rank() != 1 {
		t.Fatalf("unexpected ranks: %d/%d/%d", PriorityHigh.Rank(), PriorityMedium.Rank(), PriorityLow.Rank())
	}
	if Priority("bogus").Rank() != 0 {
		t.Fatalf("unknown priority should rank 0")
	}
}

func TestParseCategory(t *testing.T) {
	if _, err := ParseCategory("work"); err != nil {
		t.Fatalf("parse work: %v", err)
	}
	if _, err := ParseCategory("chores"); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}

func TestOverdueIgnoresTimeOfDay(t *testing.T) {
	today := DateOf(time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC))
	task := Task{Title: "a", DueDate: datePtr("2025-03-09")}
	if !task.Overdue(today) {
		t.Fatalf("expected task due yesterday to be overdue")
	}
	dueToday := Task{Title: "b", DueDate: datePtr("2025-03-10")}
	if dueToday.Overdue(today) {
		t.Fatalf("task due today must not be overdue")
	}
	done := Task{Title: "c", Completed: true, DueDate: datePtr("2025-03-01")}
	if done.Overdue(today) {
		t.Fatalf("completed task must not be overdue")
	}
	noDue := Task{Title: "d"}
	if noDue.Overdue(today) {
		t.Fatalf("task without due date must not be overdue")
	}
}

func TestDueOn(t *testing.T) {
	day := DateOf(time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC))
	task := Task{Title: "a", Completed: true, DueDate: datePtr("2025-03-10")}
	if !task.DueOn(day) {
		t.Fatalf("completion must not affect DueOn")
	}
}

func TestMatchesQuery(t *testing.T) {
	task := Task{Title: "Buy Groceries", Notes: "milk and Eggs"}
	for _, q := range []string{"groc", "GROC", "eggs", "Milk"} {
		if !task.MatchesQuery(q) {
			t.Fatalf("expected match for %q", q)
		}
	}
	if task.MatchesQuery("bread") {
		t.Fatalf("unexpected match for bread")
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d, err := ParseDate("2025-12-01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2025-12-01"` {
		t.Fatalf("unexpected encoding: %s", data)
	}
	var back Date
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Fatalf("round trip mismatch: %v != %v", back, d)
	}
	var null Date
	if err := null.UnmarshalJSON([]byte("null")); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !null.IsZero() {
		t.Fatalf("null should decode to zero date")
	}
}

func TestDraftWithDefaults(t *testing.T) {
	d := TaskDraft{Title: "x"}.WithDefaults()
	if d.Category != CategoryPersonal || d.Priority != PriorityMedium {
		t.Fatalf("unexpected defaults: %#v", d)
	}
	keep := TaskDraft{Title: "x", Category: CategoryWork, Priority: PriorityHigh}.WithDefaults()
	if keep.Category != CategoryWork || keep.Priority != PriorityHigh {
		t.Fatalf("defaults must not override explicit fields: %#v", keep)
	}
}
