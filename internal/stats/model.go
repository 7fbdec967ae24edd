// Package stats implements the per-user combat statistics engine: the
// StatisticData/UserData/UserDataManager data model, sliding-window
// realtime rate computation, history persistence and the durable
// identity cache.
package stats

import "math"

// Totals holds the cumulative damage/healing buckets for a StatisticData.
// Total always equals the sum of Normal, Critical, Lucky and CritLucky.
type Totals struct {
	Normal    int64 `json:"normal"`
	Critical  int64 `json:"critical"`
	Lucky     int64 `json:"lucky"`
	CritLucky int64 `json:"crit_lucky"`
	HpLessen  int64 `json:"hp_lessen"`
	Total     int64 `json:"total"`
}

// Counts holds the cumulative hit-count buckets. Unlike Totals, a single
// record that is both critical and lucky increments both Critical and
// Lucky, while Total only increments once per record.
type Counts struct {
	Normal   int64 `json:"normal"`
	Critical int64 `json:"critical"`
	Lucky    int64 `json:"lucky"`
	Total    int64 `json:"total"`
}

// Realtime holds the sliding-window DPS/HPS figures.
type Realtime struct {
	Value int64 `json:"value"`
	Max   int64 `json:"max"`
}

// TimeRange tracks the first and last record timestamp, in epoch ms.
// Both are zero before the first record.
type TimeRange struct {
	First int64 `json:"first"`
	Last  int64 `json:"last"`
}

type windowEntry struct {
	ts    int64
	value int64
}

// StatisticData is one damage or healing aggregate, either a user's
// top-level total or a single skill's sub-aggregate.
type StatisticData struct {
	Totals    Totals    `json:"totals"`
	Counts    Counts    `json:"counts"`
	Realtime  Realtime  `json:"realtime"`
	TimeRange TimeRange `json:"time_range"`

	Element string `json:"element"`
	Kind    string `json:"kind"`
	Name    string `json:"name"`

	window []windowEntry
}

// realtimeWindowMs is the sliding window width used for instantaneous
// DPS/HPS, per spec.
const realtimeWindowMs = 1000

// AddRecord folds one event into the aggregate. v is the amount, crit/lucky
// classify the bucket, hpLessen is only meaningful for damage aggregates.
// keepWindow controls whether the record also participates in the sliding
// realtime window — skill sub-aggregates never accumulate a window.
func (s *StatisticData) AddRecord(nowMs, v int64, isCrit, isLucky bool, hpLessen int64, keepWindow bool) {
	switch {
	case isCrit && isLucky:
		s.Totals.CritLucky += v
	case isCrit:
		s.Totals.Critical += v
	case isLucky:
		s.Totals.Lucky += v
	default:
		s.Totals.Normal += v
	}
	s.Totals.Total += v
	s.Totals.HpLessen += hpLessen

	if isCrit {
		s.Counts.Critical++
	}
	if isLucky {
		s.Counts.Lucky++
	}
	if !isCrit && !isLucky {
		s.Counts.Normal++
	}
	s.Counts.Total++

	if s.Counts.Total == 1 {
		s.TimeRange.First = nowMs
	}
	s.TimeRange.Last = nowMs

	if keepWindow {
		s.window = append(s.window, windowEntry{ts: nowMs, value: v})
	} else {
		s.window = nil
	}
}

// UpdateRealtimeStats evicts window entries older than 1s relative to now,
// recomputes Realtime.Value as their sum, and raises Realtime.Max if
// the new value is a new supremum.
func (s *StatisticData) UpdateRealtimeStats(nowMs int64) {
	kept := s.window[:0]
	var sum int64

	for _, e := range s.window {
		if nowMs-e.ts <= realtimeWindowMs {
			kept = append(kept, e)
			sum += e.value
		}
	}

	s.window = kept
	s.Realtime.Value = sum
	if sum > s.Realtime.Max {
		s.Realtime.Max = sum
	}
}

// GetTotalPerSecond returns the average total-per-second rate over the
// full recorded time range, or 0 if fewer than two distinct timestamps
// have been observed, or if the result would be non-finite.
func (s *StatisticData) GetTotalPerSecond() float64 {
	if s.TimeRange.Last == s.TimeRange.First {
		return 0
	}

	rate := float64(s.Totals.Total) * 1000 / float64(s.TimeRange.Last-s.TimeRange.First)
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}

	return rate
}

// skillKey identifies one skill sub-aggregate under a user: a kind tag
// ("damage"/"healing") plus the skill id or name used by the decoder.
type skillKey struct {
	Kind  string
	Skill string
}

// UserData is the full aggregate for one observed player uid. Sub-aggregate
// ownership is kept by value in SkillUsage, keyed on (kind, skillId) —
// no back-references to the owning user are needed in Go.
type UserData struct {
	UID  uint64 `json:"uid"`
	Name string `json:"name"`

	Profession    string `json:"profession"`
	SubProfession string `json:"subProfession"`
	FightPoint    int64  `json:"fightPoint"`

	TakenDamage int64 `json:"takenDamage"`
	DeadCount   int64 `json:"deadCount"`

	Attr map[string]float64 `json:"attr"`

	DamageStats  *StatisticData `json:"damageStats"`
	HealingStats *StatisticData `json:"healingStats"`

	SkillUsage map[skillKey]*StatisticData `json:"-"`
}

// NewUserData constructs an empty per-user aggregate.
func NewUserData(uid uint64) *UserData {
	return &UserData{
		UID:          uid,
		Attr:         make(map[string]float64),
		DamageStats:  &StatisticData{Kind: "damage"},
		HealingStats: &StatisticData{Kind: "healing"},
		SkillUsage:   make(map[skillKey]*StatisticData),
	}
}

// SetProfession sets the primary profession and resets the inferred
// sub-profession, as any profession change invalidates it.
func (u *UserData) SetProfession(p string) {
	u.Profession = p
	u.SubProfession = ""
}

// SetSubProfession records the inferred role label.
func (u *UserData) SetSubProfession(p string) {
	u.SubProfession = p
}

// skillStats returns (creating if needed) the sub-aggregate for one
// (kind, skillId-or-name) pair.
func (u *UserData) skillStats(kind, skill, element string) *StatisticData {
	key := skillKey{Kind: kind, Skill: skill}

	sd, ok := u.SkillUsage[key]
	if !ok {
		sd = &StatisticData{Kind: kind, Element: element, Name: skill}
		u.SkillUsage[key] = sd
	}

	return sd
}

// AddDamage folds one damage record into both the user's top-level damage
// stats and the per-skill sub-aggregate.
func (u *UserData) AddDamage(nowMs int64, skillID, element string, v int64, isCrit, isLucky bool, hpLessen int64) {
	u.DamageStats.AddRecord(nowMs, v, isCrit, isLucky, hpLessen, true)
	u.skillStats("damage", skillID, element).AddRecord(nowMs, v, isCrit, isLucky, hpLessen, false)
}

// AddHealing folds one healing record into both the user's top-level
// healing stats and the per-skill sub-aggregate.
func (u *UserData) AddHealing(nowMs int64, skillID, element string, v int64, isCrit, isLucky bool) {
	u.HealingStats.AddRecord(nowMs, v, isCrit, isLucky, 0, true)
	u.skillStats("healing", skillID, element).AddRecord(nowMs, v, isCrit, isLucky, 0, false)
}

// AddTakenDamage records damage taken by this user, and a death if isDead.
func (u *UserData) AddTakenDamage(v int64, isDead bool) {
	u.TakenDamage += v
	if isDead {
		u.DeadCount++
	}
}

// SetAttrKV sets an open attribute key, with hp/max_hp as well-known keys.
func (u *UserData) SetAttrKV(key string, value float64) {
	u.Attr[key] = value
}
