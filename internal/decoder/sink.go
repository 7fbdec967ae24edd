// Package decoder implements the event-decoder contract (C7): turning a
// single framed application payload into calls against a narrow
// capability interface implemented by the statistics engine.
package decoder

// EventSink is the capability interface the decoder calls into. It is
// intentionally narrow (spec.md §9, "duck-typed event decoder") so a test
// can swap in a mock without depending on the full statistics engine.
type EventSink interface {
	AddDamage(uid uint64, skillID, element string, damage int64, isCrit, isLucky, isCauseLucky bool, hpLessen int64, targetUID uint64)
	AddHealing(uid uint64, skillID, element string, healing int64, isCrit, isLucky, isCauseLucky bool, targetUID uint64)
	AddTakenDamage(uid uint64, damage int64, isDead bool)

	SetName(uid uint64, name string)
	SetProfession(uid uint64, profession string)
	SetSubProfession(uid uint64, subProfession string)
	SetFightPoint(uid uint64, fightPoint int64)
	SetAttrKV(uid uint64, key string, value float64)

	AddLog(line string)

	SetEnemy(id uint64, name string, hp, maxHP int64)
	DeleteEnemy(id uint64)
}
