package stats

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/settings"
)

// eliteDummyTargetUID is the special target uid used to filter damage
// events down to elite-dummy-only recording when onlyRecordEliteDummy is
// set (spec.md §4.8).
const eliteDummyTargetUID uint64 = 75

// Engine gates every mutating call behind pause/filter/timeout rules,
// implements decoder.EventSink, and owns the realtime/auto-save tickers
// plus the debounced identity-cache writer described in spec.md §4.8.
// It deliberately does not import the decoder package — EventSink's shape
// lives there and Engine merely happens to satisfy it, avoiding a cycle.
type Engine struct {
	manager  *Manager
	settings *settings.Store
	log      *zap.Logger

	logsDir   string
	cachePath string

	pausedMu sync.RWMutex
	paused   bool

	cacheDirty   bool
	cacheTimerMu sync.Mutex
	cacheTimer   *time.Timer

	logFileMu sync.Mutex
	logFile   *logFileHandle

	version string
}

// New builds an Engine around a freshly loaded Manager.
func New(cachePath, logsDir string, st *settings.Store, log *zap.Logger, version string, nowMs int64) (*Engine, error) {
	m, err := NewManager(cachePath, logsDir, nowMs, log)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		manager:   m,
		settings:  st,
		log:       log,
		logsDir:   logsDir,
		cachePath: cachePath,
		version:   version,
	}

	lf, err := openLogFile(logsDir, m.startTime)
	if err != nil {
		return nil, err
	}
	e.logFile = lf

	return e, nil
}

// Manager exposes the underlying data model for read-only snapshotting.
func (e *Engine) Manager() *Manager { return e.manager }

// Paused reports the current pause flag.
func (e *Engine) Paused() bool {
	e.pausedMu.RLock()
	defer e.pausedMu.RUnlock()

	return e.paused
}

// SetPaused sets the pause flag.
func (e *Engine) SetPaused(p bool) {
	e.pausedMu.Lock()
	e.paused = p
	e.pausedMu.Unlock()
}

// gate runs the shared entry checks for every mutating call: pause, and
// (for the caller's convenience) the timeout auto-clear. Returns false if
// the call should be dropped silently.
func (e *Engine) gate(nowMs int64) bool {
	if e.Paused() {
		return false
	}

	e.checkTimeoutClear(nowMs)

	return true
}

// checkTimeoutClear implements the 15s idle auto-clear from spec.md §4.8.
func (e *Engine) checkTimeoutClear(nowMs int64) {
	if !e.settings.Bool(settings.KeyAutoClearOnTimeout) {
		return
	}

	e.manager.mu.RLock()
	lastLog := e.manager.lastLogTime
	hasUsers := len(e.manager.users) > 0
	e.manager.mu.RUnlock()

	if lastLog != 0 && hasUsers && nowMs-lastLog > 15000 {
		e.ClearAll(nowMs)
	}
}

// ---- decoder.EventSink implementation ----

// AddDamage implements decoder.EventSink.
func (e *Engine) AddDamage(uid uint64, skillID, element string, damage int64, isCrit, isLucky, isCauseLucky bool, hpLessen int64, targetUID uint64) {
	now := nowMs()
	if !e.gate(now) {
		return
	}

	if e.settings.Bool(settings.KeyOnlyRecordEliteDummy) && targetUID != eliteDummyTargetUID {
		return
	}

	_ = isCauseLucky // reserved: no current aggregate bucket distinguishes it from isLucky

	e.manager.mu.Lock()
	u := e.manager.user(uid)
	u.AddDamage(now, skillID, element, damage, isCrit, isLucky, hpLessen)
	e.manager.mu.Unlock()
}

// AddHealing implements decoder.EventSink.
func (e *Engine) AddHealing(uid uint64, skillID, element string, healing int64, isCrit, isLucky, isCauseLucky bool, targetUID uint64) {
	now := nowMs()
	if !e.gate(now) {
		return
	}

	_ = isCauseLucky
	_ = targetUID

	e.manager.mu.Lock()
	u := e.manager.user(uid)
	u.AddHealing(now, skillID, element, healing, isCrit, isLucky)
	e.manager.mu.Unlock()
}

// AddTakenDamage implements decoder.EventSink.
func (e *Engine) AddTakenDamage(uid uint64, damage int64, isDead bool) {
	now := nowMs()
	if !e.gate(now) {
		return
	}

	e.manager.mu.Lock()
	u := e.manager.user(uid)
	u.AddTakenDamage(damage, isDead)
	e.manager.mu.Unlock()
}

// SetName implements decoder.EventSink.
func (e *Engine) SetName(uid uint64, name string) {
	if !e.gate(nowMs()) {
		return
	}

	e.manager.mu.Lock()
	u := e.manager.user(uid)
	u.Name = name
	e.manager.updateIdentityCache(uid, func(c *CachedIdentity) { c.Name = &name })
	e.manager.mu.Unlock()

	e.scheduleCacheSave()
}

// SetProfession implements decoder.EventSink.
func (e *Engine) SetProfession(uid uint64, profession string) {
	if !e.gate(nowMs()) {
		return
	}

	e.manager.mu.Lock()
	u := e.manager.user(uid)
	u.SetProfession(profession)
	e.manager.updateIdentityCache(uid, func(c *CachedIdentity) { c.Profession = &profession })
	e.manager.mu.Unlock()

	e.scheduleCacheSave()
}

// SetSubProfession implements decoder.EventSink.
func (e *Engine) SetSubProfession(uid uint64, subProfession string) {
	if !e.gate(nowMs()) {
		return
	}

	e.manager.mu.Lock()
	u := e.manager.user(uid)
	u.SetSubProfession(subProfession)
	e.manager.mu.Unlock()
}

// SetFightPoint implements decoder.EventSink.
func (e *Engine) SetFightPoint(uid uint64, fightPoint int64) {
	if !e.gate(nowMs()) {
		return
	}

	e.manager.mu.Lock()
	u := e.manager.user(uid)
	u.FightPoint = fightPoint
	e.manager.updateIdentityCache(uid, func(c *CachedIdentity) { c.FightPoint = &fightPoint })
	e.manager.mu.Unlock()

	e.scheduleCacheSave()
}

// SetAttrKV implements decoder.EventSink.
func (e *Engine) SetAttrKV(uid uint64, key string, value float64) {
	if !e.gate(nowMs()) {
		return
	}

	e.manager.mu.Lock()
	u := e.manager.user(uid)
	u.SetAttrKV(key, value)

	if key == "max_hp" {
		e.manager.updateIdentityCache(uid, func(c *CachedIdentity) { c.MaxHp = &value })
	}
	if key == "hp" {
		e.manager.hpCache[uid] = value
	}
	e.manager.mu.Unlock()

	if key == "max_hp" {
		e.scheduleCacheSave()
	}
}

// AddLog implements decoder.EventSink: appends one timestamped line to
// logs/<startTime>/fight.log under its own mutex, separate from the
// statistics mutex, so logging isn't blocked by a stalled flow
// (spec.md §5, "Shared resource policy").
func (e *Engine) AddLog(line string) {
	now := nowMs()

	e.manager.mu.Lock()
	e.manager.lastLogTime = now
	e.manager.mu.Unlock()

	e.logFileMu.Lock()
	defer e.logFileMu.Unlock()

	if e.logFile != nil {
		e.logFile.Append(now, line)
	}
}

// SetEnemy implements decoder.EventSink.
func (e *Engine) SetEnemy(id uint64, name string, hp, maxHP int64) {
	if !e.gate(nowMs()) {
		return
	}

	e.manager.mu.Lock()
	e.manager.enemyCache[id] = &EnemyInfo{Name: name, HP: hp, MaxHP: maxHP}
	e.manager.mu.Unlock()
}

// DeleteEnemy implements decoder.EventSink.
func (e *Engine) DeleteEnemy(id uint64) {
	if !e.gate(nowMs()) {
		return
	}

	e.manager.mu.Lock()
	delete(e.manager.enemyCache, id)
	e.manager.mu.Unlock()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
