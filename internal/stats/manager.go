package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func uidString(uid uint64) string {
	return strconv.FormatUint(uid, 10)
}

// CachedIdentity is one entry of the durable identity cache (users.json).
// Fields are pointers so that an absent field round-trips as absent
// rather than as a zero value.
type CachedIdentity struct {
	Name       *string  `json:"name,omitempty"`
	Profession *string  `json:"profession,omitempty"`
	FightPoint *int64   `json:"fightPoint,omitempty"`
	MaxHp      *float64 `json:"maxHp,omitempty"`
}

// EnemyInfo is one enemy-cache entry.
type EnemyInfo struct {
	Name  string `json:"name"`
	HP    int64  `json:"hp"`
	MaxHP int64  `json:"maxHp"`
}

// Manager is the process-wide singleton holding every user's aggregate,
// the identity cache and the enemy cache, per spec.md §3. All mutation
// goes through the owning stats.Engine; Manager itself only guarantees
// internal consistency of its maps under mu.
type Manager struct {
	mu sync.RWMutex

	users     map[uint64]*UserData
	userCache map[string]*CachedIdentity
	hpCache   map[uint64]float64
	enemyCache map[uint64]*EnemyInfo

	startTime        int64
	lastLogTime      int64
	lastAutoSaveTime int64

	cachePath string
	logsDir   string

	log *zap.Logger
}

// NewManager loads the identity cache from cachePath (if present) and
// returns a fresh Manager with an empty user map, starting session clock
// at nowMs.
func NewManager(cachePath, logsDir string, nowMs int64, log *zap.Logger) (*Manager, error) {
	m := &Manager{
		users:      make(map[uint64]*UserData),
		userCache:  make(map[string]*CachedIdentity),
		hpCache:    make(map[uint64]float64),
		enemyCache: make(map[uint64]*EnemyInfo),
		startTime:  nowMs,
		cachePath:  cachePath,
		logsDir:    logsDir,
		log:        log,
	}

	if err := m.loadIdentityCache(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) loadIdentityCache() error {
	data, err := os.ReadFile(m.cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read identity cache")
	}

	if len(data) == 0 {
		return nil
	}

	cache := make(map[string]*CachedIdentity)
	if err := json.Unmarshal(data, &cache); err != nil {
		return errors.Wrap(err, "parse identity cache")
	}

	m.userCache = cache

	return nil
}

// saveIdentityCache writes the identity cache to disk synchronously.
func (m *Manager) saveIdentityCache() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.userCache, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		return errors.Wrap(err, "marshal identity cache")
	}

	if dir := filepath.Dir(m.cachePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create identity cache dir")
		}
	}

	if err := os.WriteFile(m.cachePath, data, 0o644); err != nil {
		return errors.Wrap(err, "write identity cache")
	}

	return nil
}

// user returns (creating lazily if needed) the UserData for uid. Caller
// must hold mu for writing.
func (m *Manager) user(uid uint64) *UserData {
	u, ok := m.users[uid]
	if !ok {
		u = NewUserData(uid)

		if cached, ok := m.userCache[uidString(uid)]; ok {
			if cached.Name != nil {
				u.Name = *cached.Name
			}
			if cached.Profession != nil {
				u.SetProfession(*cached.Profession)
			}
			if cached.FightPoint != nil {
				u.FightPoint = *cached.FightPoint
			}
			if cached.MaxHp != nil {
				u.Attr["max_hp"] = *cached.MaxHp
			}
		}

		m.users[uid] = u
	}

	return u
}

// updateIdentityCache mirrors one field change into the durable cache.
// Caller must hold mu for writing.
func (m *Manager) updateIdentityCache(uid uint64, mutate func(*CachedIdentity)) {
	key := uidString(uid)

	c, ok := m.userCache[key]
	if !ok {
		c = &CachedIdentity{}
		m.userCache[key] = c
	}

	mutate(c)
}

// HasActivity reports whether any user has been observed in the current
// session and a log line has been recorded at least once.
func (m *Manager) HasActivity() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lastLogTime != 0 && len(m.users) > 0
}

// ClearEnemyCache empties the enemy cache unconditionally (called on
// scene-server change).
func (m *Manager) ClearEnemyCache() {
	m.mu.Lock()
	m.enemyCache = make(map[uint64]*EnemyInfo)
	m.mu.Unlock()
}

// Snapshot renders the current users and enemies into the on-wire shape.
func (m *Manager) Snapshot() DataSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := DataSnapshot{
		User:  make(map[string]UserSnapshot, len(m.users)),
		Enemy: make(map[string]EnemySnapshot, len(m.enemyCache)),
	}

	for uid, u := range m.users {
		out.User[uidString(uid)] = toUserSnapshot(uid, u)
	}

	for eid, e := range m.enemyCache {
		out.Enemy[uidString(eid)] = EnemySnapshot{Name: e.Name, HP: e.HP, MaxHP: e.MaxHP}
	}

	return out
}

// SkillSnapshot returns the skill breakdown for one uid, and whether the
// uid is known.
func (m *Manager) SkillSnapshot(uid uint64) (SkillSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[uid]
	if !ok {
		return SkillSnapshot{}, false
	}

	return toSkillSnapshot(uid, u), true
}

// maxHpMonsterName returns the name of the enemy in the live enemy cache
// with the largest observed MaxHP.
func (m *Manager) maxHpMonsterName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best string
	var bestHP int64

	for _, e := range m.enemyCache {
		if e.MaxHP > bestHP {
			bestHP = e.MaxHP
			best = e.Name
		}
	}

	return best
}
