package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddRecordBucketsAndTotals(t *testing.T) {
	var s StatisticData

	s.AddRecord(1000, 100, false, false, 0, true)
	s.AddRecord(1000, 50, true, false, 0, true)
	s.AddRecord(1000, 25, false, true, 0, true)
	s.AddRecord(1000, 10, true, true, 0, true)

	require.Equal(t, Totals{Normal: 100, Critical: 50, Lucky: 25, CritLucky: 10, Total: 185}, s.Totals)

	// Counts: a crit+lucky hit increments both Critical and Lucky count
	// buckets but Total only once.
	require.Equal(t, int64(1), s.Counts.Normal)
	require.Equal(t, int64(2), s.Counts.Critical)
	require.Equal(t, int64(2), s.Counts.Lucky)
	require.Equal(t, int64(4), s.Counts.Total)
}

func TestAddRecordHpLessenOnlyAffectsDamage(t *testing.T) {
	var s StatisticData
	s.AddRecord(1000, 100, false, false, 30, true)

	if s.Totals.HpLessen != 30 {
		t.Fatalf("expected hp_lessen 30, got %d", s.Totals.HpLessen)
	}
}

func TestAddRecordTracksTimeRange(t *testing.T) {
	var s StatisticData

	s.AddRecord(5000, 1, false, false, 0, true)
	if s.TimeRange.First != 5000 || s.TimeRange.Last != 5000 {
		t.Fatalf("unexpected range after first record: %+v", s.TimeRange)
	}

	s.AddRecord(6000, 1, false, false, 0, true)
	if s.TimeRange.First != 5000 || s.TimeRange.Last != 6000 {
		t.Fatalf("first should stay fixed, last should advance: %+v", s.TimeRange)
	}
}

func TestAddRecordKeepWindowFalseClearsWindow(t *testing.T) {
	var s StatisticData

	s.AddRecord(1000, 10, false, false, 0, true)
	if len(s.window) != 1 {
		t.Fatalf("expected one window entry")
	}

	s.AddRecord(1000, 10, false, false, 0, false)
	if s.window != nil {
		t.Fatalf("expected window to be cleared when keepWindow is false")
	}
}

func TestUpdateRealtimeStatsEvictsOldEntriesAndTracksMax(t *testing.T) {
	var s StatisticData

	s.AddRecord(0, 100, false, false, 0, true)
	s.UpdateRealtimeStats(0)
	if s.Realtime.Value != 100 || s.Realtime.Max != 100 {
		t.Fatalf("unexpected realtime after first tick: %+v", s.Realtime)
	}

	// Still within the 1000ms window.
	s.AddRecord(500, 50, false, false, 0, true)
	s.UpdateRealtimeStats(500)
	if s.Realtime.Value != 150 {
		t.Fatalf("expected window sum 150, got %d", s.Realtime.Value)
	}
	if s.Realtime.Max != 150 {
		t.Fatalf("expected max to rise to 150, got %d", s.Realtime.Max)
	}

	// Far enough past that both entries fall out of the window.
	s.UpdateRealtimeStats(2000)
	if s.Realtime.Value != 0 {
		t.Fatalf("expected window to drain to 0, got %d", s.Realtime.Value)
	}
	if s.Realtime.Max != 150 {
		t.Fatalf("expected max to persist after window drains, got %d", s.Realtime.Max)
	}
}

func TestGetTotalPerSecond(t *testing.T) {
	var s StatisticData

	require.Zero(t, s.GetTotalPerSecond())

	s.AddRecord(0, 1000, false, false, 0, true)
	require.Zero(t, s.GetTotalPerSecond(), "a single timestamp yields no rate")

	s.AddRecord(2000, 1000, false, false, 0, true)
	// 2000 total over 2000ms = 1000/s.
	require.Equal(t, float64(1000), s.GetTotalPerSecond())
}

func TestUserDataSetProfessionResetsSubProfession(t *testing.T) {
	u := NewUserData(1)
	u.SetProfession("Stormblade")
	u.SetSubProfession("Heavy Attack")

	if u.SubProfession != "Heavy Attack" {
		t.Fatalf("expected sub-profession to be set")
	}

	u.SetProfession("Frostbeam")
	if u.SubProfession != "" {
		t.Fatalf("expected sub-profession to reset on profession change, got %q", u.SubProfession)
	}
}

func TestUserDataAddDamageUpdatesTopLevelAndSkill(t *testing.T) {
	u := NewUserData(1)

	u.AddDamage(1000, "skill-1", "fire", 100, false, false, 20)
	u.AddDamage(1000, "skill-1", "fire", 50, true, false, 10)
	u.AddDamage(1000, "skill-2", "ice", 30, false, false, 0)

	if u.DamageStats.Totals.Total != 180 {
		t.Fatalf("expected top-level damage total 180, got %d", u.DamageStats.Totals.Total)
	}
	if u.DamageStats.Totals.HpLessen != 30 {
		t.Fatalf("expected top-level hp_lessen 30, got %d", u.DamageStats.Totals.HpLessen)
	}

	skill1 := u.skillStats("damage", "skill-1", "fire")
	if skill1.Totals.Total != 150 {
		t.Fatalf("expected skill-1 total 150, got %d", skill1.Totals.Total)
	}
	if skill1.window != nil {
		t.Fatalf("skill sub-aggregates must not keep a realtime window")
	}

	skill2 := u.skillStats("damage", "skill-2", "ice")
	if skill2.Totals.Total != 30 {
		t.Fatalf("expected skill-2 total 30, got %d", skill2.Totals.Total)
	}
}

func TestUserDataAddHealingDoesNotAffectDamageStats(t *testing.T) {
	u := NewUserData(1)
	u.AddHealing(1000, "heal-1", "", 75, false, true)

	if u.HealingStats.Totals.Lucky != 75 {
		t.Fatalf("expected healing lucky total 75, got %d", u.HealingStats.Totals.Lucky)
	}
	if u.DamageStats.Totals.Total != 0 {
		t.Fatalf("expected damage stats untouched, got %+v", u.DamageStats.Totals)
	}
}

func TestUserDataAddTakenDamageTracksDeaths(t *testing.T) {
	u := NewUserData(1)

	u.AddTakenDamage(100, false)
	u.AddTakenDamage(50, true)

	if u.TakenDamage != 150 {
		t.Fatalf("expected taken damage 150, got %d", u.TakenDamage)
	}
	if u.DeadCount != 1 {
		t.Fatalf("expected 1 death, got %d", u.DeadCount)
	}
}

func TestUserDataSetAttrKV(t *testing.T) {
	u := NewUserData(1)
	u.SetAttrKV("hp", 1000)
	u.SetAttrKV("max_hp", 2000)

	if u.Attr["hp"] != 1000 || u.Attr["max_hp"] != 2000 {
		t.Fatalf("unexpected attrs: %+v", u.Attr)
	}
}
