package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// logFileHandle appends timestamped lines to logs/<startTime>/fight.log.
// Append is not rewritten, only ever grown, per spec.md §4.8.
type logFileHandle struct {
	f *os.File
}

func openLogFile(logsDir string, startTime int64) (*logFileHandle, error) {
	dir := sessionDir(logsDir, strconv.FormatInt(startTime, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create session log dir")
	}

	f, err := os.OpenFile(filepath.Join(dir, "fight.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open fight.log")
	}

	return &logFileHandle{f: f}, nil
}

func (l *logFileHandle) Append(nowMs int64, line string) {
	ts := time.UnixMilli(nowMs).UTC().Format("2006-01-02T15:04:05.000Z")
	fmt.Fprintf(l.f, "[%s] %s\n", ts, line)
}

func (l *logFileHandle) Close() error {
	if l == nil || l.f == nil {
		return nil
	}

	return l.f.Close()
}

func sessionDir(logsDir string, ts string) string {
	return filepath.Join(logsDir, ts)
}

// ClearAll transfers the current users map and startTime to a history
// snapshot on disk, then replaces both with a fresh empty map and now.
func (e *Engine) ClearAll(nowMs int64) {
	e.manager.mu.Lock()

	oldUsers := e.manager.users
	oldStart := e.manager.startTime
	oldEnemies := e.manager.enemyCache

	e.manager.users = make(map[uint64]*UserData)
	e.manager.startTime = nowMs
	e.manager.lastLogTime = 0
	e.manager.lastAutoSaveTime = 0

	e.manager.mu.Unlock()

	if err := e.writeSnapshot(oldStart, nowMs, oldUsers, oldEnemies); err != nil {
		e.log.Error("failed to write history snapshot", zap.Error(err))
	}

	e.logFileMu.Lock()
	if err := e.logFile.Close(); err != nil {
		e.log.Error("failed to close fight log", zap.Error(err))
	}
	lf, err := openLogFile(e.logsDir, nowMs)
	if err != nil {
		e.log.Error("failed to open new fight log", zap.Error(err))
	} else {
		e.logFile = lf
	}
	e.logFileMu.Unlock()
}

// writeSnapshot renders one session's users/enemies to
// logs/<startTime>/{summary,allUserData}.json and logs/<startTime>/users/<uid>.json.
func (e *Engine) writeSnapshot(startTime, endTime int64, users map[uint64]*UserData, enemies map[uint64]*EnemyInfo) error {
	dir := sessionDir(e.logsDir, strconv.FormatInt(startTime, 10))
	if err := os.MkdirAll(filepath.Join(dir, "users"), 0o755); err != nil {
		return errors.Wrap(err, "create session dir")
	}

	allUserData := make(map[string]UserSnapshot, len(users))
	for uid, u := range users {
		allUserData[uidString(uid)] = toUserSnapshot(uid, u)
	}

	if err := writeJSON(filepath.Join(dir, "allUserData.json"), allUserData); err != nil {
		return err
	}

	for uid, u := range users {
		skill := toSkillSnapshot(uid, u)
		if err := writeJSON(filepath.Join(dir, "users", uidString(uid)+".json"), skill); err != nil {
			return err
		}
	}

	var bestName string
	var bestHP int64
	for _, en := range enemies {
		if en.MaxHP > bestHP {
			bestHP = en.MaxHP
			bestName = en.Name
		}
	}

	summary := SummaryFile{
		StartTime:    startTime,
		EndTime:      endTime,
		Duration:     endTime - startTime,
		UserCount:    len(users),
		Version:      e.version,
		MaxHpMonster: bestName,
	}

	return writeJSON(filepath.Join(dir, "summary.json"), summary)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal %s", path)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}

	return nil
}

// historyTsPattern matches the session-directory naming convention: a
// plain millisecond epoch.
var historyTsPattern = regexp.MustCompile(`^\d+$`)

// IsValidHistoryTimestamp reports whether ts looks like a session
// directory name, guarding the history endpoints against path traversal.
func IsValidHistoryTimestamp(ts string) bool {
	return historyTsPattern.MatchString(ts)
}

// HistorySummaryPath, HistoryDataPath, HistorySkillPath and HistoryLogPath
// resolve the on-disk location of one session's snapshot files, for the
// history query endpoints (spec.md §4.9).
func HistorySummaryPath(logsDir, ts string) string {
	return filepath.Join(sessionDir(logsDir, ts), "summary.json")
}

func HistoryDataPath(logsDir, ts string) string {
	return filepath.Join(sessionDir(logsDir, ts), "allUserData.json")
}

func HistorySkillPath(logsDir, ts, uid string) string {
	return filepath.Join(sessionDir(logsDir, ts), "users", uid+".json")
}

func HistoryLogPath(logsDir, ts string) string {
	return filepath.Join(sessionDir(logsDir, ts), "fight.log")
}

// ListHistory returns every session directory name under logsDir, sorted.
func ListHistory(logsDir string) ([]string, error) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(err, "read logs dir")
	}

	var out []string
	for _, ent := range entries {
		if ent.IsDir() && historyTsPattern.MatchString(ent.Name()) {
			out = append(out, ent.Name())
		}
	}

	sort.Strings(out)

	return out, nil
}

// ClearDataOnServerChange implements spec.md §4.4: the enemy cache is
// always cleared; user stats only clear if autoClearOnServerChange is set
// and the previous session had observed activity.
func (e *Engine) ClearDataOnServerChange(nowMs int64) {
	e.manager.ClearEnemyCache()

	if e.settings.Bool("autoClearOnServerChange") && e.manager.HasActivity() {
		e.ClearAll(nowMs)
	}
}

// RunRealtimeTicker recomputes sliding-window realtime rates for every
// user every 100ms until ctx is canceled, invoking onTick with the latest
// snapshot after each pass (used to drive the WebSocket broadcaster).
func (e *Engine) RunRealtimeTicker(ctx context.Context, onTick func(DataSnapshot)) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := nowMs()

			e.manager.mu.Lock()
			for _, u := range e.manager.users {
				u.DamageStats.UpdateRealtimeStats(now)
				u.HealingStats.UpdateRealtimeStats(now)
			}
			e.manager.mu.Unlock()

			if onTick != nil && !e.Paused() {
				onTick(e.manager.Snapshot())
			}
		}
	}
}

// RunAutoSaveTicker snapshots the current session to disk every 10s if
// new activity has been logged since the last save, and evicts stale
// reassembly state via evictStale. Runs until ctx is canceled.
func (e *Engine) RunAutoSaveTicker(ctx context.Context, evictStale func(nowMs int64)) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := nowMs()

			if evictStale != nil {
				evictStale(now)
			}

			e.manager.mu.RLock()
			shouldSave := e.manager.lastLogTime >= e.manager.lastAutoSaveTime && len(e.manager.users) > 0
			startTime := e.manager.startTime
			users := make(map[uint64]*UserData, len(e.manager.users))
			for uid, u := range e.manager.users {
				users[uid] = u
			}
			enemies := make(map[uint64]*EnemyInfo, len(e.manager.enemyCache))
			for id, en := range e.manager.enemyCache {
				enemies[id] = en
			}
			e.manager.mu.RUnlock()

			if !shouldSave {
				continue
			}

			if err := e.writeSnapshot(startTime, now, users, enemies); err != nil {
				e.log.Error("auto-save snapshot failed", zap.Error(err))
				continue
			}

			e.manager.mu.Lock()
			e.manager.lastAutoSaveTime = now
			e.manager.mu.Unlock()
		}
	}
}

// scheduleCacheSave debounces identity-cache writes to a single timer
// firing 2s after the last change, per spec.md §4.8.
func (e *Engine) scheduleCacheSave() {
	e.cacheTimerMu.Lock()
	defer e.cacheTimerMu.Unlock()

	e.cacheDirty = true

	if e.cacheTimer != nil {
		e.cacheTimer.Reset(2 * time.Second)
		return
	}

	e.cacheTimer = time.AfterFunc(2*time.Second, func() {
		e.cacheTimerMu.Lock()
		e.cacheDirty = false
		e.cacheTimer = nil
		e.cacheTimerMu.Unlock()

		if err := e.manager.saveIdentityCache(); err != nil {
			e.log.Error("failed to save identity cache", zap.Error(err))
		}
	})
}

// FlushCacheSync writes the identity cache synchronously, used on
// shutdown so no update is lost to the debounce window.
func (e *Engine) FlushCacheSync() error {
	e.cacheTimerMu.Lock()
	if e.cacheTimer != nil {
		e.cacheTimer.Stop()
		e.cacheTimer = nil
	}
	e.cacheDirty = false
	e.cacheTimerMu.Unlock()

	return e.manager.saveIdentityCache()
}

// Shutdown flushes the identity cache and takes a final synchronous
// snapshot of the current session, for use from a signal handler.
func (e *Engine) Shutdown() error {
	now := nowMs()

	if err := e.FlushCacheSync(); err != nil {
		return err
	}

	e.manager.mu.RLock()
	startTime := e.manager.startTime
	users := make(map[uint64]*UserData, len(e.manager.users))
	for uid, u := range e.manager.users {
		users[uid] = u
	}
	enemies := make(map[uint64]*EnemyInfo, len(e.manager.enemyCache))
	for id, en := range e.manager.enemyCache {
		enemies[id] = en
	}
	e.manager.mu.RUnlock()

	if len(users) == 0 {
		return e.logFile.Close()
	}

	if err := e.writeSnapshot(startTime, now, users, enemies); err != nil {
		return err
	}

	return e.logFile.Close()
}
