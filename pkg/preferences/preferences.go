// Package preferences implements the per-client display preference store:
// viewport width, an optional density override and a theme. The effective
// density is the override when set, otherwise a function of viewport width.
package preferences

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

type Preferences struct {
	// mu serializes writers so the stored effective density always matches
	// the viewport and override it was computed from.
	mu sync.Mutex

	clientID string
	storage  Storage
	log      *logrus.Entry

	viewport  *Observable[int]
	override  *Observable[Density]
	theme     *Observable[Theme]
	effective *Observable[Density]
}

// Snapshot is the JSON view of a client's preferences.
type Snapshot struct {
	ClientID        string  `json:"clientId"`
	ViewportWidth   int     `json:"viewportWidth"`
	DensityOverride Density `json:"densityOverride,omitempty"`
	Density         Density `json:"density"`
	Theme           Theme   `json:"theme"`
}

func densityKey(clientID string) string { return "density." + clientID }
func themeKey(clientID string) string   { return "theme." + clientID }

// New builds preferences for clientID, hydrating persisted values from storage.
func New(clientID string, storage Storage, log *logrus.Entry) (*Preferences, error) {
	p := &Preferences{
		clientID: clientID,
		storage:  storage,
		log:      log.WithField("client", clientID),
		viewport: NewObservable(0),
		override: NewObservable(Density("")),
		theme:    NewObservable(ThemeSystem),
	}

	if err := p.hydrate(); err != nil {
		return nil, err
	}

	p.effective = NewObservable(p.computeEffective())
	return p, nil
}

func (p *Preferences) hydrate() error {
	raw, ok, err := p.storage.Get(densityKey(p.clientID))
	if err != nil {
		return errors.Wrap(err, "load density override")
	}
	if ok {
		if d, err := ParseDensity(raw); err == nil {
			p.override.Set(d)
		} else {
			p.log.WithError(err).Warn("ignoring stored density override")
		}
	}

	raw, ok, err = p.storage.Get(themeKey(p.clientID))
	if err != nil {
		return errors.Wrap(err, "load theme")
	}
	if ok {
		if t, err := ParseTheme(raw); err == nil {
			p.theme.Set(t)
		} else {
			p.log.WithError(err).Warn("ignoring stored theme")
		}
	}
	return nil
}

func (p *Preferences) computeEffective() Density {
	if d := p.override.Get(); d != "" {
		return d
	}
	return DensityForWidth(p.viewport.Get())
}

func (p *Preferences) ClientID() string { return p.clientID }

func (p *Preferences) ViewportWidth() int { return p.viewport.Get() }

// SetViewportWidth records a resize report. Viewport width is not persisted.
func (p *Preferences) SetViewportWidth(width int) {
	if width < 0 {
		width = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport.Set(width)
	p.effective.Set(p.computeEffective())
}

func (p *Preferences) DensityOverride() (Density, bool) {
	d := p.override.Get()
	return d, d != ""
}

// SetDensityOverride persists d and makes it the effective density.
func (p *Preferences) SetDensityOverride(d Density) error {
	if _, err := ParseDensity(string(d)); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.storage.Set(densityKey(p.clientID), string(d)); err != nil {
		return errors.Wrap(err, "save density override")
	}
	p.override.Set(d)
	p.effective.Set(p.computeEffective())
	return nil
}

// ClearDensityOverride returns the effective density to the viewport mapping.
func (p *Preferences) ClearDensityOverride() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.storage.Delete(densityKey(p.clientID)); err != nil {
		return errors.Wrap(err, "clear density override")
	}
	p.override.Set("")
	p.effective.Set(p.computeEffective())
	return nil
}

func (p *Preferences) EffectiveDensity() Density {
	return p.effective.Get()
}

// OnDensityChange subscribes to changes of the effective density. fn runs
// while the change is being applied: it may read these preferences but must
// not modify them.
func (p *Preferences) OnDensityChange(fn func(Density)) (unsubscribe func()) {
	return p.effective.Subscribe(fn)
}

func (p *Preferences) Theme() Theme { return p.theme.Get() }

func (p *Preferences) SetTheme(t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.storage.Set(themeKey(p.clientID), string(t)); err != nil {
		return errors.Wrap(err, "save theme")
	}
	p.theme.Set(t)
	return nil
}

// OnThemeChange subscribes to theme changes, with the same restriction as
// OnDensityChange.
func (p *Preferences) OnThemeChange(fn func(Theme)) (unsubscribe func()) {
	return p.theme.Subscribe(fn)
}

func (p *Preferences) Snapshot() Snapshot {
	override, _ := p.DensityOverride()
	return Snapshot{
		ClientID:        p.clientID,
		ViewportWidth:   p.ViewportWidth(),
		DensityOverride: override,
		Density:         p.EffectiveDensity(),
		Theme:           p.Theme(),
	}
}
