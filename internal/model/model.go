// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Validity is the tri-state liveness classification of a credential.
type Validity uint8

const (
	// Unknown is the initial state; the credential has never been probed.
	Unknown Validity = iota
	// Valid means the last probe succeeded.
	Valid
	// Invalid means the last probe failed or was rejected.
	Invalid
)

// String returns the wire name of v.
func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ParseValidity converts a wire name back to a Validity.
func ParseValidity(s string) (Validity, error) {
	switch s {
	case "valid":
		return Valid, nil
	case "invalid":
		return Invalid, nil
	case "unknown", "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown validity %q", s)
}

// MarshalJSON encodes v by name.
func (v Validity) MarshalJSON() ([]byte, error) { return json.Marshal(v.String()) }

// UnmarshalJSON decodes v from its name.
func (v *Validity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	p, err := ParseValidity(s)
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// Credential is a single pooled session cookie with its validation state.
type Credential struct {
	Value         string    // raw cookie as supplied by the operator
	Identity      string    // crypto.Identity(Value)
	CreatedAt     time.Time // set once on insertion
	Validity      Validity  // Unknown until the first probe
	LastCheckedAt time.Time // zero until the first probe
}

// Checked reports whether the credential was ever probed.
func (c Credential) Checked() bool { return !c.LastCheckedAt.IsZero() }

// PoolStatus counts pool entries by their current validity.
type PoolStatus struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Unknown int `json:"unknown"`
}

// CredentialDetail is the display-safe view of a pooled credential.
type CredentialDetail struct {
	Index         int               `json:"index"`
	Identity      string            `json:"cookie_hash"`
	Validity      Validity          `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	LastCheckedAt *time.Time        `json:"last_checked,omitempty"`
	Length        int               `json:"cookie_length"`
	Preview       map[string]string `json:"cookie_preview"`
}

// AuthInfo carries the per-session query parameters the remote backend
// expects alongside the cookie.
type AuthInfo struct {
	Token       string
	Fingerprint string
}

// Complete reports whether both fields are set.
func (a AuthInfo) Complete() bool { return a.Token != "" && a.Fingerprint != "" }

// Account is the subset of a remote search hit the service exposes.
type Account struct {
	FakeID    string `json:"fakeid"`
	Nickname  string `json:"nickname"`
	Alias     string `json:"alias"`
	Signature string `json:"signature"`
	HeadImage string `json:"round_head_img"`
}

// FansResult is the answer to a follower-count query.
type FansResult struct {
	FansCount int    `json:"fans_count"`
	Avatar    string `json:"avatar"`
	WechatID  string `json:"wechat_id"`
	Signature string `json:"signature"`
	Nickname  string `json:"nickname"`
	FakeID    string `json:"fakeid"`
}
