package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/alem-hub/arena-engine/internal/domain/notification"
)

// FeatureFlags manages feature toggles with gradual per-user rollout.
// Notification kinds and background jobs are gated here so a noisy
// notification can be switched off without a deploy.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userOverrides: userID -> feature -> enabled
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Users are bucketed by a hash of their ID.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// === Notification Features ===
	FeatureNotifyLevelUp   = "notify.level_up"
	FeatureNotifyStreak    = "notify.streak"
	FeatureNotifyQuest     = "notify.quest"
	FeatureNotifyDuel      = "notify.duel"
	FeatureNotifyBossSolve = "notify.boss_solve"

	// === Background Jobs ===
	FeatureJobSettleDuels = "job.settle_duels"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureNotifyLevelUp, Description: "Notify on level up", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyStreak, Description: "Notify on streak shields and breaks", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyQuest, Description: "Notify on quest completion", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyDuel, Description: "Notify duel challenges and results", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyBossSolve, Description: "Notify boss battle ranks", Enabled: true, RolloutPercent: 100},
		{Name: FeatureJobSettleDuels, Description: "Settle due duels in the worker", Enabled: true, RolloutPercent: 100},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_NOTIFY_STREAK=false
// Example: FEATURE_NOTIFY_QUEST=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "notify.level_up" -> "FEATURE_NOTIFY_LEVEL_UP"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks a feature globally, ignoring partial rollout.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled && feature.RolloutPercent > 0
}

// IsEnabledFor checks a feature for one user.
func (ff *FeatureFlags) IsEnabledFor(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if overrides, ok := ff.userOverrides[userID]; ok {
		if enabled, ok := overrides[featureName]; ok {
			return enabled
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if feature.RolloutPercent >= 100 {
		return true
	}
	return isInRollout(userID, featureName, feature.RolloutPercent)
}

// isInRollout uses consistent hashing so users stay in their bucket.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// notificationFeature maps a notification kind to its flag.
func notificationFeature(t notification.Type) string {
	switch t {
	case notification.TypeLevelUp:
		return FeatureNotifyLevelUp
	case notification.TypeStreakMilestone, notification.TypeStreakBroken:
		return FeatureNotifyStreak
	case notification.TypeQuestCompleted:
		return FeatureNotifyQuest
	case notification.TypeDuelChallenge, notification.TypeDuelUpdate, notification.TypeDuelResult:
		return FeatureNotifyDuel
	case notification.TypeBossSolved:
		return FeatureNotifyBossSolve
	}
	return ""
}

// AllowNotification reports whether n may be delivered. Unknown kinds pass.
// It fits messaging.DispatcherConfig.Filter.
func (ff *FeatureFlags) AllowNotification(n *notification.Notification) bool {
	name := notificationFeature(n.Type)
	if name == "" {
		return true
	}
	return ff.IsEnabledFor(name, n.UserID)
}

// SetUserOverride sets a feature override for a specific user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
