package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/cookiepool/internal/crypto"
	"github.com/and161185/cookiepool/internal/model"
)

const recordVersion = 1

// ErrUnreadableRecord marks a persisted record that cannot be decoded.
var ErrUnreadableRecord = errors.New("unreadable record")

// record is the persisted form of a credential. Unknown fields are ignored
// so newer writers stay readable.
type record struct {
	Version       int            `json:"v"`
	Sealed        bool           `json:"sealed,omitempty"`
	Value         []byte         `json:"value,omitempty"`
	CreatedAt     int64          `json:"created_at"`
	Validity      model.Validity `json:"validity"`
	LastCheckedAt int64          `json:"last_checked,omitempty"`
}

// Codec converts credentials to and from their persisted bytes.
type Codec struct {
	sealer *crypto.Sealer
}

// NewCodec constructs a codec; a nil sealer stores values in the clear.
func NewCodec(sealer *crypto.Sealer) Codec { return Codec{sealer: sealer} }

// Encode serializes c, sealing the raw value when a key is configured.
func (c Codec) Encode(cr model.Credential) ([]byte, error) {
	value, err := c.sealer.Seal([]byte(cr.Value), cr.Identity)
	if err != nil {
		return nil, fmt.Errorf("seal credential %s: %w", cr.Identity, err)
	}
	rec := record{
		Version:   recordVersion,
		Sealed:    c.sealer.Enabled(),
		Value:     value,
		CreatedAt: cr.CreatedAt.UnixMilli(),
		Validity:  cr.Validity,
	}
	if cr.Checked() {
		rec.LastCheckedAt = cr.LastCheckedAt.UnixMilli()
	}
	return json.Marshal(rec)
}

// Decode parses raw persisted bytes stored under identity. Any failure is
// reported as ErrUnreadableRecord so callers can skip the entry.
func (c Codec) Decode(identity string, raw []byte) (model.Credential, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Credential{}, fmt.Errorf("%w: %v", ErrUnreadableRecord, err)
	}

	cr, err := c.fromRecord(identity, rec)
	if err != nil {
		return model.Credential{}, fmt.Errorf("%w: %v", ErrUnreadableRecord, err)
	}
	if cr.Value == "" {
		return model.Credential{}, fmt.Errorf("%w: empty value", ErrUnreadableRecord)
	}
	if crypto.Identity(cr.Value) != identity {
		return model.Credential{}, fmt.Errorf("%w: identity mismatch", ErrUnreadableRecord)
	}
	cr.Identity = identity
	return cr, nil
}

func (c Codec) fromRecord(identity string, rec record) (model.Credential, error) {
	value := rec.Value
	if rec.Sealed {
		if !c.sealer.Enabled() {
			return model.Credential{}, errors.New("sealed record but no key configured")
		}
		opened, err := c.sealer.Open(rec.Value, identity)
		if err != nil {
			return model.Credential{}, fmt.Errorf("open sealed value: %w", err)
		}
		value = opened
	}
	return model.Credential{
		Value:         string(value),
		CreatedAt:     fromMillis(rec.CreatedAt),
		Validity:      rec.Validity,
		LastCheckedAt: fromMillis(rec.LastCheckedAt),
	}, nil
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
