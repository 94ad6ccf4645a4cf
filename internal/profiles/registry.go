// Package profiles implements the reader profile registry: a YAML file
// describing profiles and their annotation-service accounts, exposed to the
// engine through the profile reader interface.
package profiles

import (
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
	"github.com/listenupapp/listenup-bookmarks/internal/id"
	"github.com/listenupapp/listenup-bookmarks/internal/validation"
)

// accountYAML is one account entry in the registry file.
type accountYAML struct {
	ID             string `yaml:"id" validate:"required"`
	Name           string `yaml:"name" validate:"required"`
	AnnotationsURI string `yaml:"annotations_uri" validate:"omitempty,url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	LoggedIn       bool   `yaml:"logged_in"`
}

// profileYAML is one profile entry in the registry file.
type profileYAML struct {
	ID       string        `yaml:"id" validate:"required"`
	Name     string        `yaml:"name" validate:"required"`
	Accounts []accountYAML `yaml:"accounts" validate:"dive"`
}

type registryYAML struct {
	Profiles []profileYAML `yaml:"profiles" validate:"dive"`
	Current  string        `yaml:"current"`
}

const eventBuffer = 8

// Registry holds the loaded profiles and broadcasts lifecycle events to the
// engine. It implements the engine's profile reader.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
	current  string

	profSubs map[string]chan domain.ProfileEvent
	acctSubs map[string]chan domain.AccountEvent

	logger *slog.Logger
}

// Load reads and validates the registry file. A missing file yields an empty
// registry rather than an error: a fresh install has no profiles yet.
func Load(path string, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		profiles: make(map[string]domain.Profile),
		profSubs: make(map[string]chan domain.ProfileEvent),
		acctSubs: make(map[string]chan domain.AccountEvent),
		logger:   logger,
	}

	data, err := os.ReadFile(path) //#nosec G304 -- registry path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no profile registry found, starting empty", "path", path)
			return r, nil
		}
		return nil, errors.Wrap(err, errors.CodeStorage, "read profile registry")
	}

	var doc registryYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeParse, "malformed profile registry")
	}

	v := validation.New()
	for _, p := range doc.Profiles {
		if err := v.Validate(p); err != nil {
			return nil, errors.Wrapf(err, errors.CodeValidation, "invalid profile %q", p.ID)
		}
		accounts := make(map[domain.AccountID]domain.Account, len(p.Accounts))
		for _, a := range p.Accounts {
			accounts[domain.AccountID(a.ID)] = domain.Account{
				ID:             domain.AccountID(a.ID),
				Name:           a.Name,
				AnnotationsURI: a.AnnotationsURI,
				Credentials:    domain.Credentials{Username: a.Username, Password: a.Password},
				LoggedIn:       a.LoggedIn,
			}
		}
		r.profiles[p.ID] = domain.Profile{ID: p.ID, Name: p.Name, Accounts: accounts}
	}

	if doc.Current != "" {
		if _, ok := r.profiles[doc.Current]; !ok {
			return nil, errors.Validationf("current profile %q not in registry", doc.Current)
		}
		r.current = doc.Current
	}

	logger.Info("profile registry loaded",
		"path", path,
		"profiles", len(r.profiles),
	)
	return r, nil
}

// CurrentProfile returns the selected profile, or ok=false when none is.
func (r *Registry) CurrentProfile() (domain.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return domain.Profile{}, false
	}
	p, ok := r.profiles[r.current]
	return p, ok
}

// Profiles returns all registered profiles.
func (r *Registry) Profiles() []domain.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}

// SelectProfile makes a profile current and notifies subscribers.
func (r *Registry) SelectProfile(profileID string) error {
	r.mu.Lock()
	if _, ok := r.profiles[profileID]; !ok {
		r.mu.Unlock()
		return errors.NotFoundf("profile %q not in registry", profileID)
	}
	r.current = profileID
	r.mu.Unlock()

	r.publishProfile(domain.ProfileEvent{Type: domain.ProfileSelected, ProfileID: profileID})
	return nil
}

// SetLoggedIn flips an account's login state on the current profile and
// notifies subscribers on a change.
func (r *Registry) SetLoggedIn(accountID domain.AccountID, loggedIn bool) error {
	r.mu.Lock()
	profile, ok := r.profiles[r.current]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("no profile selected")
	}
	account, ok := profile.Accounts[accountID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFoundf("account %q not in current profile", accountID)
	}
	changed := account.LoggedIn != loggedIn
	account.LoggedIn = loggedIn
	profile.Accounts[accountID] = account
	r.mu.Unlock()

	if !changed {
		return nil
	}
	eventType := domain.AccountLoggedOut
	if loggedIn {
		eventType = domain.AccountLoggedIn
	}
	r.publishAccount(domain.AccountEvent{Type: eventType, AccountID: accountID})
	return nil
}

// DeleteAccount removes an account from the current profile and notifies
// subscribers.
func (r *Registry) DeleteAccount(accountID domain.AccountID) error {
	r.mu.Lock()
	profile, ok := r.profiles[r.current]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("no profile selected")
	}
	if _, ok := profile.Accounts[accountID]; !ok {
		r.mu.Unlock()
		return errors.NotFoundf("account %q not in current profile", accountID)
	}
	delete(profile.Accounts, accountID)
	r.mu.Unlock()

	r.publishAccount(domain.AccountEvent{Type: domain.AccountDeleted, AccountID: accountID})
	return nil
}

// ProfileEvents subscribes to profile lifecycle events.
func (r *Registry) ProfileEvents() (<-chan domain.ProfileEvent, func()) {
	ch := make(chan domain.ProfileEvent, eventBuffer)
	key := id.MustGenerate("sub")

	r.mu.Lock()
	r.profSubs[key] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.profSubs[key]; ok {
			delete(r.profSubs, key)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// AccountEvents subscribes to account lifecycle events.
func (r *Registry) AccountEvents() (<-chan domain.AccountEvent, func()) {
	ch := make(chan domain.AccountEvent, eventBuffer)
	key := id.MustGenerate("sub")

	r.mu.Lock()
	r.acctSubs[key] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.acctSubs[key]; ok {
			delete(r.acctSubs, key)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Registry) publishProfile(ev domain.ProfileEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, ch := range r.profSubs {
		select {
		case ch <- ev:
		default:
			r.logger.Warn("profile event subscriber full, dropping event", "subscriber", key)
		}
	}
}

func (r *Registry) publishAccount(ev domain.AccountEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, ch := range r.acctSubs {
		select {
		case ch <- ev:
		default:
			r.logger.Warn("account event subscriber full, dropping event", "subscriber", key)
		}
	}
}
