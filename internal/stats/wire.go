package stats

// The on-wire schema used by both the HTTP/WebSocket surface and the
// history snapshot files, so the shape never diverges across endpoints
// (spec.md §9, "Dynamic summary objects").

// UserSnapshot is the per-user shape returned by /api/data and stored in
// allUserData.json.
type UserSnapshot struct {
	UID           string `json:"uid"`
	Name          string `json:"name"`
	Profession    string `json:"profession"`
	SubProfession string `json:"subProfession"`
	FightPoint    int64  `json:"fightPoint"`
	HP            float64 `json:"hp"`
	MaxHP         float64 `json:"maxHp"`

	TakenDamage int64 `json:"taken_damage"`
	DeadCount   int64 `json:"dead_count"`

	TotalDamage      Totals `json:"total_damage"`
	TotalCount       Counts `json:"total_count"`
	RealtimeDps      int64  `json:"realtime_dps"`
	RealtimeDpsMax   int64  `json:"realtime_dps_max"`
	TotalDps         float64 `json:"total_dps"`

	TotalHealing     Totals `json:"total_healing"`
	TotalHealingCount Counts `json:"total_healing_count"`
	RealtimeHps      int64  `json:"realtime_hps"`
	RealtimeHpsMax   int64  `json:"realtime_hps_max"`
	TotalHps         float64 `json:"total_hps"`
}

// EnemySnapshot is the shape returned by /api/enemies.
type EnemySnapshot struct {
	Name  string `json:"name"`
	HP    int64  `json:"hp"`
	MaxHP int64  `json:"maxHp"`
}

// DataSnapshot is the shape returned by /api/data and broadcast on /ws.
type DataSnapshot struct {
	User  map[string]UserSnapshot  `json:"user"`
	Enemy map[string]EnemySnapshot `json:"enemy"`
}

// SkillDetail is one skill sub-aggregate, as returned by /api/skill/:uid.
type SkillDetail struct {
	SkillID string          `json:"skillId"`
	Kind    string          `json:"kind"`
	Element string          `json:"element"`
	Stats   *StatisticData  `json:"stats"`
}

// SkillSnapshot is the full per-user skill breakdown.
type SkillSnapshot struct {
	UID    string        `json:"uid"`
	Skills []SkillDetail `json:"skills"`
}

// SummaryFile is the shape of logs/<startTime>/summary.json.
type SummaryFile struct {
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime"`
	Duration     int64  `json:"duration"`
	UserCount    int    `json:"userCount"`
	Version      string `json:"version"`
	MaxHpMonster string `json:"maxHpMonster"`
}

// displayProfession renders the combined "{profession}-{subProfession}"
// label shown by the client, defaulting the base profession to "Unknown"
// once a sub-profession has been inferred from a skill id but no identity
// packet has named the profession yet.
func displayProfession(u *UserData) string {
	base := u.Profession

	if u.SubProfession == "" {
		return base
	}

	if base == "" {
		base = "Unknown"
	}

	return base + "-" + u.SubProfession
}

// toUserSnapshot renders one UserData into its wire shape. The realtime
// figures are the ones the realtime ticker last computed; nothing is
// recomputed here.
func toUserSnapshot(uid uint64, u *UserData) UserSnapshot {
	return UserSnapshot{
		UID:               uidString(uid),
		Name:              u.Name,
		Profession:        displayProfession(u),
		SubProfession:     u.SubProfession,
		FightPoint:        u.FightPoint,
		HP:                u.Attr["hp"],
		MaxHP:             u.Attr["max_hp"],
		TakenDamage:       u.TakenDamage,
		DeadCount:         u.DeadCount,
		TotalDamage:       u.DamageStats.Totals,
		TotalCount:        u.DamageStats.Counts,
		RealtimeDps:       u.DamageStats.Realtime.Value,
		RealtimeDpsMax:    u.DamageStats.Realtime.Max,
		TotalDps:          u.DamageStats.GetTotalPerSecond(),
		TotalHealing:      u.HealingStats.Totals,
		TotalHealingCount: u.HealingStats.Counts,
		RealtimeHps:       u.HealingStats.Realtime.Value,
		RealtimeHpsMax:    u.HealingStats.Realtime.Max,
		TotalHps:          u.HealingStats.GetTotalPerSecond(),
	}
}

func toSkillSnapshot(uid uint64, u *UserData) SkillSnapshot {
	out := SkillSnapshot{UID: uidString(uid)}

	for key, sd := range u.SkillUsage {
		out.Skills = append(out.Skills, SkillDetail{
			SkillID: key.Skill,
			Kind:    key.Kind,
			Element: sd.Element,
			Stats:   sd,
		})
	}

	return out
}
