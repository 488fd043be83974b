package authcode

import (
	"fmt"
	"net/url"
	"sync"
)

// Location reports where the user agent currently is.
type Location interface {
	Current() *url.URL
}

// StaticLocation is a Location that never changes.
type StaticLocation struct {
	URL *url.URL
}

func (l StaticLocation) Current() *url.URL {
	if l.URL == nil {
		return &url.URL{}
	}
	u := *l.URL
	return &u
}

// MutableLocation is a Location that can be moved, like a browser following redirects.
type MutableLocation struct {
	mu  sync.RWMutex
	url *url.URL
}

// NewMutableLocation parses raw as the initial location.
func NewMutableLocation(raw string) (*MutableLocation, error) {
	l := &MutableLocation{}
	if err := l.Set(raw); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *MutableLocation) Current() *url.URL {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.url == nil {
		return &url.URL{}
	}
	u := *l.url
	return &u
}

// Set moves the location to raw.
func (l *MutableLocation) Set(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid location %q: %w", raw, err)
	}
	l.SetURL(u)
	return nil
}

// SetURL moves the location to u.
func (l *MutableLocation) SetURL(u *url.URL) {
	c := *u
	l.mu.Lock()
	l.url = &c
	l.mu.Unlock()
}
