// Package update provides version checking and self-update for the
// weft binary, backed by GitHub releases.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

const (
	repoOwner     = "pengelbrecht"
	repoName      = "weft"
	checkInterval = 24 * time.Hour
)

// InstallMethod represents how weft was installed.
type InstallMethod int

const (
	InstallUnknown InstallMethod = iota
	InstallHomebrew
	InstallScript
)

func (m InstallMethod) String() string {
	switch m {
	case InstallHomebrew:
		return "homebrew"
	case InstallScript:
		return "script"
	default:
		return "unknown"
	}
}

// DetectInstallMethod determines how weft was installed by examining
// the binary path. Homebrew installs live under a Cellar directory or
// a brew prefix; everything else is treated as a script or go install.
func DetectInstallMethod() InstallMethod {
	exe, err := os.Executable()
	if err != nil {
		return InstallUnknown
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return InstallUnknown
	}

	if strings.Contains(exe, "/Cellar/") ||
		strings.HasPrefix(exe, "/opt/homebrew/") ||
		strings.HasPrefix(exe, "/usr/local/Homebrew/") ||
		strings.Contains(exe, "linuxbrew") {
		return InstallHomebrew
	}
	return InstallScript
}

// Release describes an available release.
type Release struct {
	Version    string
	ReleaseURL string
}

// CheckForUpdate reports whether a newer release exists. Dev builds are
// never offered updates.
func CheckForUpdate(currentVersion string) (*Release, bool, error) {
	current := strings.TrimPrefix(currentVersion, "v")
	if current == "dev" || current == "" {
		return nil, false, nil
	}

	latest, found, err := detectLatest()
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	release := &Release{
		Version:    latest.Version(),
		ReleaseURL: latest.ReleaseNotes,
	}
	if strings.TrimPrefix(latest.Version(), "v") == current {
		return release, false, nil
	}
	return release, latest.GreaterThan(current), nil
}

// Update replaces the running binary with the latest release. Homebrew
// installs are refused; brew owns those files.
func Update(currentVersion string) error {
	if DetectInstallMethod() == InstallHomebrew {
		return fmt.Errorf("weft was installed via Homebrew; run: brew upgrade %s/tap/%s", repoOwner, repoName)
	}

	current := strings.TrimPrefix(currentVersion, "v")
	if current == "dev" || current == "" {
		return fmt.Errorf("cannot update dev builds")
	}

	latest, found, err := detectLatest()
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no releases found")
	}
	if !latest.GreaterThan(current) {
		return fmt.Errorf("already at latest version (%s)", currentVersion)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	updater, err := newUpdater()
	if err != nil {
		return err
	}
	if err := updater.UpdateTo(context.Background(), latest, exe); err != nil {
		return fmt.Errorf("applying update: %w", err)
	}
	return nil
}

// CheckPeriodically checks for updates at most once per day, caching
// the result. Returns a notice string when an update is available.
func CheckPeriodically(currentVersion string) string {
	current := strings.TrimPrefix(currentVersion, "v")
	if current == "dev" || current == "" {
		return ""
	}

	if cache := loadCache(); cache != nil && time.Since(cache.LastCheck) < checkInterval {
		// The cached version must still be newer; the user may have
		// upgraded since the cache was written.
		if cache.UpdateAvailable && cache.LatestVersion != "" {
			latest := strings.TrimPrefix(cache.LatestVersion, "v")
			if latest != current && isNewerVersion(latest, current) {
				return formatUpdateNotice(currentVersion, cache.LatestVersion)
			}
		}
		return ""
	}

	release, hasUpdate, err := CheckForUpdate(currentVersion)

	cache := &updateCache{
		LastCheck:       time.Now(),
		UpdateAvailable: hasUpdate && err == nil,
	}
	if release != nil {
		cache.LatestVersion = release.Version
	}
	saveCache(cache)

	if err != nil || !hasUpdate {
		return ""
	}
	return formatUpdateNotice(currentVersion, release.Version)
}

func detectLatest() (*selfupdate.Release, bool, error) {
	updater, err := newUpdater()
	if err != nil {
		return nil, false, err
	}
	latest, found, err := updater.DetectLatest(context.Background(), selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, false, fmt.Errorf("detecting latest version: %w", err)
	}
	return latest, found, nil
}

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("creating GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{Source: source})
	if err != nil {
		return nil, fmt.Errorf("creating updater: %w", err)
	}
	return updater, nil
}

// updateCache stores the last check result under the user config dir.
type updateCache struct {
	LastCheck       time.Time `json:"last_check"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

func cachePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "weft", "update-cache.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "weft", "update-cache.json")
}

func loadCache() *updateCache {
	path := cachePath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cache updateCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	return &cache
}

func saveCache(cache *updateCache) {
	path := cachePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0644)
}

// isNewerVersion compares two major.minor.patch versions numerically.
func isNewerVersion(a, b string) bool {
	pa, pb := parseVersion(a), parseVersion(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			return pa[i] > pb[i]
		}
	}
	return false
}

func parseVersion(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		_, _ = fmt.Sscanf(part, "%d", &out[i])
	}
	return out
}

func formatUpdateNotice(current, latest string) string {
	cmd := "weft upgrade"
	if DetectInstallMethod() == InstallHomebrew {
		cmd = fmt.Sprintf("brew upgrade %s/tap/%s", repoOwner, repoName)
	}
	return fmt.Sprintf("Update available: %s -> %s (run: %s)", current, latest, cmd)
}
