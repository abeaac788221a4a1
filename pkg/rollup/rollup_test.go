package rollup

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

const ts = "2026-02-18T09:00:00.000Z"

func testKey(t *testing.T, b byte) *keyring.Key {
	t.Helper()
	k, err := keyring.NewKey(bytes.Repeat([]byte{b}, 32))
	if err != nil {
		t.Fatalf("NewKey() error = %v", err)
	}
	return k
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.MemoryDSN)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putEntry(t *testing.T, s *store.Store, k *keyring.Key, date string, c Content) {
	t.Helper()
	sealed, err := SealContent(c, k)
	if err != nil {
		t.Fatalf("SealContent() error = %v", err)
	}
	e := &store.Entry{ID: date, Date: date, Ciphertext: sealed.Ciphertext, IV: sealed.IV, CreatedAt: ts, UpdatedAt: ts}
	if err := s.PutEntry(context.Background(), e); err != nil {
		t.Fatalf("PutEntry() error = %v", err)
	}
}

func putReflection(t *testing.T, s *store.Store, k *keyring.Key, typ period.Type, key, text string) {
	t.Helper()
	r := &store.Rollup{ID: store.RollupID(typ, key), Type: typ, PeriodKey: key, CreatedAt: ts, UpdatedAt: ts}
	if text != "" {
		sealed, err := keyring.SealString(text, k)
		if err != nil {
			t.Fatalf("SealString() error = %v", err)
		}
		r.Ciphertext, r.IV = sealed.Ciphertext, sealed.IV
	}
	if err := s.PutRollup(context.Background(), r); err != nil {
		t.Fatalf("PutRollup() error = %v", err)
	}
}

func TestAvailablePeriods(t *testing.T) {
	metas := []store.EntryMeta{
		{Date: "2026-02-18"},
		{Date: "2026-02-17"},
		{Date: "2025-12-29"},
		{Date: "2025-11-03"},
		{Date: "bogus"},
	}

	got := AvailablePeriods(metas)

	wantWeeks := []string{"2026-W08", "2026-W01", "2025-W45"}
	wantMonths := []string{"2026-02", "2025-12", "2025-11"}
	wantQuarters := []string{"2026-Q1", "2025-Q4"}
	wantYears := []string{"2026", "2025"}

	check := func(name string, got, want []string) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s = %v, want %v", name, got, want)
				return
			}
		}
	}
	check("weeks", got.Weeks, wantWeeks)
	check("months", got.Months, wantMonths)
	check("quarters", got.Quarters, wantQuarters)
	check("years", got.Years, wantYears)
	check("For(yearly)", got.For(period.Yearly), wantYears)

	empty := AvailablePeriods(nil)
	if len(empty.Weeks)+len(empty.Months)+len(empty.Quarters)+len(empty.Years) != 0 {
		t.Errorf("AvailablePeriods(nil) = %+v, want empty", empty)
	}
}

func TestSummarizeExcludesBlankAnswers(t *testing.T) {
	entries := []*Entry{
		{Date: "2026-02-18", Content: Content{Success: "", Delight: "  ", Learning: "goroutines", Compliment: " nice review "}},
		{Date: "2026-02-16", Content: Content{Success: "shipped"}},
		{Date: "2026-02-23", Content: Content{Success: "next week"}},
	}

	s, err := Summarize(entries, "2026-W08", period.Weekly, "a good week")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if s.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", s.EntryCount)
	}
	if s.Label != "Week 8, 2026" {
		t.Errorf("Label = %q", s.Label)
	}
	if s.Reflection != "a good week" {
		t.Errorf("Reflection = %q", s.Reflection)
	}
	if len(s.Success) != 1 || s.Success[0].Date != "2026-02-16" || s.Success[0].Text != "shipped" {
		t.Errorf("Success = %+v", s.Success)
	}
	if len(s.Delight) != 0 {
		t.Errorf("Delight = %+v, want none", s.Delight)
	}
	if len(s.Learning) != 1 || s.Learning[0].DateLabel != "Feb 18, 2026" {
		t.Errorf("Learning = %+v", s.Learning)
	}
	if len(s.Compliment) != 1 || s.Compliment[0].Text != "nice review" {
		t.Errorf("Compliment = %+v", s.Compliment)
	}
}

func TestSummarizeInvalidKey(t *testing.T) {
	if _, err := Summarize(nil, "2026-13", period.Monthly, ""); !errors.Is(err, period.ErrInvalidKey) {
		t.Errorf("Summarize() error = %v, want %v", err, period.ErrInvalidKey)
	}
}

func TestSubPeriodReflections(t *testing.T) {
	s := openStore(t)
	k := testKey(t, 0x11)
	other := testKey(t, 0x22)
	engine := NewEngine(s)
	ctx := context.Background()

	putReflection(t, s, k, period.Weekly, "2026-W05", "late January")
	putReflection(t, s, k, period.Weekly, "2026-W01", "new year")
	putReflection(t, s, k, period.Weekly, "2026-W06", "early February")
	putReflection(t, s, k, period.Weekly, "2026-W03", "")
	putReflection(t, s, k, period.Weekly, "2026-W04", "   ")
	putReflection(t, s, other, period.Weekly, "2026-W02", "foreign key")

	got, err := engine.SubPeriodReflections(ctx, period.Monthly, "2026-01", k)
	if err != nil {
		t.Fatalf("SubPeriodReflections() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SubPeriodReflections() = %+v, want 2 items", got)
	}
	if got[0].PeriodKey != "2026-W01" || got[1].PeriodKey != "2026-W05" {
		t.Errorf("order = %s, %s", got[0].PeriodKey, got[1].PeriodKey)
	}
	if got[1].Label != "Week 5, 2026" || got[1].Reflection != "late January" {
		t.Errorf("got[1] = %+v", got[1])
	}

	feb, err := engine.SubPeriodReflections(ctx, period.Monthly, "2026-02", k)
	if err != nil {
		t.Fatalf("SubPeriodReflections() error = %v", err)
	}
	if len(feb) != 1 || feb[0].PeriodKey != "2026-W06" {
		t.Errorf("February = %+v", feb)
	}

	weekly, err := engine.SubPeriodReflections(ctx, period.Weekly, "2026-W05", k)
	if err != nil || weekly != nil {
		t.Errorf("weekly = %+v, %v; want nil, nil", weekly, err)
	}
}

func TestSubPeriodReflectionsAllLevels(t *testing.T) {
	s := openStore(t)
	k := testKey(t, 0x33)
	engine := NewEngine(s)
	ctx := context.Background()

	putReflection(t, s, k, period.Monthly, "2026-03", "march")
	putReflection(t, s, k, period.Monthly, "2026-04", "april")
	putReflection(t, s, k, period.Quarterly, "2026-Q2", "q2")
	putReflection(t, s, k, period.Quarterly, "2025-Q4", "last year")

	q1, err := engine.SubPeriodReflections(ctx, period.Quarterly, "2026-Q1", k)
	if err != nil || len(q1) != 1 || q1[0].Label != "March 2026" {
		t.Errorf("Q1 = %+v, %v", q1, err)
	}

	year, err := engine.SubPeriodReflections(ctx, period.Yearly, "2026", k)
	if err != nil || len(year) != 1 || year[0].PeriodKey != "2026-Q2" {
		t.Errorf("2026 = %+v, %v", year, err)
	}
}

func TestView(t *testing.T) {
	s := openStore(t)
	k := testKey(t, 0x44)
	other := testKey(t, 0x55)
	engine := NewEngine(s)
	ctx := context.Background()

	putEntry(t, s, k, "2026-01-05", Content{Success: "kickoff"})
	putEntry(t, s, k, "2026-01-20", Content{Learning: "fuzzing", Delight: "snow"})
	putEntry(t, s, other, "2026-01-21", Content{Success: "unreadable"})
	putEntry(t, s, k, "2026-02-02", Content{Success: "february"})
	putReflection(t, s, k, period.Monthly, "2026-01", "solid start")
	putReflection(t, s, k, period.Weekly, "2026-W05", "late January")

	v, err := engine.View(ctx, period.Monthly, "2026-01", k)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}

	if v.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", v.EntryCount)
	}
	if v.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", v.Skipped)
	}
	if v.Reflection != "solid start" {
		t.Errorf("Reflection = %q", v.Reflection)
	}
	if len(v.Success) != 1 || v.Success[0].Text != "kickoff" {
		t.Errorf("Success = %+v", v.Success)
	}
	if len(v.SubReflections) != 1 || v.SubReflections[0].PeriodKey != "2026-W05" {
		t.Errorf("SubReflections = %+v", v.SubReflections)
	}
}

func TestViewWeekAcrossYears(t *testing.T) {
	s := openStore(t)
	k := testKey(t, 0x66)
	engine := NewEngine(s)

	putEntry(t, s, k, "2025-12-29", Content{Success: "monday"})
	putEntry(t, s, k, "2026-01-04", Content{Success: "sunday"})
	putEntry(t, s, k, "2026-01-05", Content{Success: "next week"})

	v, err := engine.View(context.Background(), period.Weekly, "2026-W01", k)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if v.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", v.EntryCount)
	}
	if v.SubReflections != nil {
		t.Errorf("weekly view has sub reflections: %+v", v.SubReflections)
	}
}

func TestViewUnreadableReflectionDegrades(t *testing.T) {
	s := openStore(t)
	k := testKey(t, 0x77)
	other := testKey(t, 0x78)
	engine := NewEngine(s)

	putEntry(t, s, k, "2026-03-03", Content{Success: "ok"})
	putReflection(t, s, other, period.Yearly, "2026", "someone else's")

	v, err := engine.View(context.Background(), period.Yearly, "2026", k)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if v.Reflection != "" || v.Skipped != 1 || v.EntryCount != 1 {
		t.Errorf("View() = reflection %q skipped %d count %d", v.Reflection, v.Skipped, v.EntryCount)
	}
}

func TestViewClearedKeyIsFatal(t *testing.T) {
	s := openStore(t)
	k := testKey(t, 0x88)
	engine := NewEngine(s)

	putEntry(t, s, k, "2026-03-03", Content{Success: "ok"})
	k.Clear()

	if _, err := engine.View(context.Background(), period.Monthly, "2026-03", k); !errors.Is(err, keyring.ErrNoActiveKey) {
		t.Errorf("View() error = %v, want %v", err, keyring.ErrNoActiveKey)
	}
	if _, err := engine.SubPeriodReflections(context.Background(), period.Monthly, "2026-03", k); err != nil {
		t.Errorf("SubPeriodReflections() with no rollups error = %v", err)
	}
}

func TestOpenEntryMalformedPayload(t *testing.T) {
	k := testKey(t, 0x99)
	sealed, err := keyring.SealString("not json", k)
	if err != nil {
		t.Fatalf("SealString() error = %v", err)
	}
	e := &store.Entry{ID: "2026-03-03", Date: "2026-03-03", Ciphertext: sealed.Ciphertext, IV: sealed.IV}
	if _, err := OpenEntry(e, k); !errors.Is(err, keyring.ErrDecryptionFailed) {
		t.Errorf("OpenEntry() error = %v, want %v", err, keyring.ErrDecryptionFailed)
	}
}

func TestContentIsEmpty(t *testing.T) {
	if !(Content{Success: " ", Delight: "\n\t"}).IsEmpty() {
		t.Error("whitespace content should be empty")
	}
	if (Content{Compliment: "thanks"}).IsEmpty() {
		t.Error("content with a compliment should not be empty")
	}
}
