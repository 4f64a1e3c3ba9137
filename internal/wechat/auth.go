package wechat

import (
	"sync/atomic"

	"github.com/and161185/cookiepool/internal/model"
)

// AuthSource holds the token and fingerprint used for remote calls.
// Values observed on incoming requests replace the configured defaults.
type AuthSource struct {
	cur atomic.Pointer[model.AuthInfo]
}

// NewAuthSource seeds the source with configured defaults.
func NewAuthSource(def model.AuthInfo) *AuthSource {
	a := &AuthSource{}
	a.cur.Store(&def)
	return a
}

// Get returns the current auth info.
func (a *AuthSource) Get() model.AuthInfo {
	if p := a.cur.Load(); p != nil {
		return *p
	}
	return model.AuthInfo{}
}

// Observe records non-empty fields of info.
func (a *AuthSource) Observe(info model.AuthInfo) {
	for {
		old := a.cur.Load()
		next := model.AuthInfo{}
		if old != nil {
			next = *old
		}
		if info.Token != "" {
			next.Token = info.Token
		}
		if info.Fingerprint != "" {
			next.Fingerprint = info.Fingerprint
		}
		if a.cur.CompareAndSwap(old, &next) {
			return
		}
	}
}
