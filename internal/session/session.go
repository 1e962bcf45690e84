package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/studiowebux/reqgate/internal/config"
	"github.com/studiowebux/reqgate/internal/types"
	"github.com/tidwall/jsonc"
)

// TokenKey is the credential key the gateway asks for
const TokenKey = "token"

// Manager handles session and profile management. It is the gateway's
// credential provider, so reads are safe for concurrent use.
type Manager struct {
	mu           sync.RWMutex
	session      *types.Session
	profiles     []types.Profile
	sessionPath  string
	profilesPath string
}

// NewManager creates a manager using the local or global config files
func NewManager() *Manager {
	return NewManagerWithPaths(config.GetSessionFilePath(), config.GetProfilesFilePath())
}

// NewManagerWithPaths creates a manager reading and writing the given files
func NewManagerWithPaths(sessionPath, profilesPath string) *Manager {
	return &Manager{
		session:      newSession(),
		profiles:     []types.Profile{defaultProfile()},
		sessionPath:  sessionPath,
		profilesPath: profilesPath,
	}
}

func newSession() *types.Session {
	enabled := true
	return &types.Session{
		Variables:      make(map[string]string),
		HistoryEnabled: &enabled,
	}
}

func defaultProfile() types.Profile {
	return types.Profile{
		Name:      "Default",
		Workdir:   "requests",
		Variables: make(map[string]string),
	}
}

// Load loads session and profiles from disk
func (m *Manager) Load() error {
	if err := m.LoadSession(); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if err := m.LoadProfiles(); err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	return nil
}

// LoadSession loads the session file
func (m *Manager) LoadSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.sessionPath)
	if err != nil {
		// If file doesn't exist, use default session
		m.session = newSession()
		return nil
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}
	if session.Variables == nil {
		session.Variables = make(map[string]string)
	}
	if session.HistoryEnabled == nil {
		enabled := true
		session.HistoryEnabled = &enabled
	}

	m.session = &session
	return nil
}

// SaveSession saves the session to disk
func (m *Manager) SaveSession() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveSessionLocked()
}

func (m *Manager) saveSessionLocked() error {
	data, err := json.MarshalIndent(m.session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	// session holds credentials
	if err := os.WriteFile(m.sessionPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// LoadProfiles loads the profiles file. Comments and trailing commas are
// allowed.
func (m *Manager) LoadProfiles() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.profilesPath)
	if err != nil {
		m.profiles = []types.Profile{defaultProfile()}
		return nil
	}

	var profiles []types.Profile
	if err := json.Unmarshal(jsonc.ToJSON(data), &profiles); err != nil {
		return fmt.Errorf("failed to parse profiles file: %w", err)
	}

	seen := make(map[string]bool, len(profiles))
	for i := range profiles {
		if profiles[i].Name == "" {
			return fmt.Errorf("profile %d has no name", i)
		}
		if seen[profiles[i].Name] {
			return fmt.Errorf("duplicate profile name: %s", profiles[i].Name)
		}
		seen[profiles[i].Name] = true
		if profiles[i].Variables == nil {
			profiles[i].Variables = make(map[string]string)
		}
	}

	if len(profiles) == 0 {
		profiles = []types.Profile{defaultProfile()}
	}
	m.profiles = profiles
	return nil
}

// SaveProfiles saves the profiles to disk. Comments are not preserved.
func (m *Manager) SaveProfiles() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveProfilesLocked()
}

func (m *Manager) saveProfilesLocked() error {
	data, err := json.MarshalIndent(m.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := os.WriteFile(m.profilesPath, data, config.FilePermissions); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}
	return nil
}

// GetSession returns a copy of the current session
func (m *Manager) GetSession() types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := *m.session
	s.Variables = make(map[string]string, len(m.session.Variables))
	for k, v := range m.session.Variables {
		s.Variables[k] = v
	}
	return s
}

// GetProfiles returns all profiles
func (m *Manager) GetProfiles() []types.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Profile(nil), m.profiles...)
}

// GetActiveProfile returns the currently active profile, falling back to
// the first one
func (m *Manager) GetActiveProfile() types.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeProfileLocked()
}

func (m *Manager) activeProfileLocked() types.Profile {
	for i := range m.profiles {
		if m.profiles[i].Name == m.session.ActiveProfile {
			return m.profiles[i]
		}
	}
	if len(m.profiles) > 0 {
		return m.profiles[0]
	}
	return defaultProfile()
}

// SetActiveProfile sets the active profile by name
func (m *Manager) SetActiveProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, profile := range m.profiles {
		if profile.Name == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("profile not found: %s", name)
	}

	// Clear session variables when switching profiles
	// This prevents stale tokens/data from previous profile
	m.session.Variables = make(map[string]string)
	m.session.Token = ""
	m.session.RefreshToken = ""
	m.session.TokenExpiry = nil

	m.session.ActiveProfile = name
	return m.saveSessionLocked()
}

// AddProfile adds a new profile
func (m *Manager) AddProfile(profile types.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if profile.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	for _, p := range m.profiles {
		if p.Name == profile.Name {
			return fmt.Errorf("profile already exists: %s", profile.Name)
		}
	}

	m.profiles = append(m.profiles, profile)
	return m.saveProfilesLocked()
}

// DeleteProfile deletes a profile by name
func (m *Manager) DeleteProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.profiles {
		if m.profiles[i].Name == name {
			m.profiles = append(m.profiles[:i], m.profiles[i+1:]...)
			return m.saveProfilesLocked()
		}
	}
	return fmt.Errorf("profile not found: %s", name)
}

// Get implements gateway.CredentialProvider. The token key reads the stored
// access token; other keys read session variables, then the active
// profile's variables.
func (m *Manager) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if key == TokenKey && m.session.Token != "" {
		return m.session.Token, true
	}
	if v, ok := m.session.Variables[key]; ok {
		return v, true
	}
	v, ok := m.activeProfileLocked().Variables[key]
	return v, ok
}

// Variables returns the active profile's variables overlaid with session
// variables
func (m *Manager) Variables() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile := m.activeProfileLocked()
	vars := make(map[string]string, len(profile.Variables)+len(m.session.Variables))
	for k, v := range profile.Variables {
		vars[k] = v
	}
	for k, v := range m.session.Variables {
		vars[k] = v
	}
	return vars
}

// SetToken stores an access token. refresh and expiry may be empty.
func (m *Manager) SetToken(token, refresh string, expiry *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.Token = token
	if refresh != "" {
		m.session.RefreshToken = refresh
	}
	m.session.TokenExpiry = expiry
	return m.saveSessionLocked()
}

// ClearToken removes the stored access and refresh tokens
func (m *Manager) ClearToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.Token = ""
	m.session.RefreshToken = ""
	m.session.TokenExpiry = nil
	return m.saveSessionLocked()
}

// SetSessionVariable sets a session variable
func (m *Manager) SetSessionVariable(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.Variables[name] = value
	return m.saveSessionLocked()
}

// DeleteSessionVariable deletes a session variable
func (m *Manager) DeleteSessionVariable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.session.Variables, name)
	return m.saveSessionLocked()
}

// IsHistoryEnabled returns whether history tracking is enabled
func (m *Manager) IsHistoryEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session.HistoryEnabled == nil {
		return true
	}
	return *m.session.HistoryEnabled
}

// SetHistoryEnabled sets whether history tracking is enabled
func (m *Manager) SetHistoryEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.HistoryEnabled = &enabled
	return m.saveSessionLocked()
}
