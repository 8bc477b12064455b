package accounts

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nodeadmin/backend/internal/models"
	"golang.org/x/crypto/openpgp"
)

type KeyState string

const (
	KeyAbsent            KeyState = "absent"
	KeyPendingValidation KeyState = "pending_validation"
	KeyValid             KeyState = "valid"
	KeyInvalid           KeyState = "invalid"
)

// KeyInfo is what gets derived from an accepted public key. A nil
// Expiration means the key does not expire.
type KeyInfo struct {
	Fingerprint string
	Expiration  *time.Time
}

var now = time.Now

// ValidateKey parses an armored PGP public key. An empty text yields
// (nil, nil) when canBeEmpty is set and a ValidationError otherwise.
func ValidateKey(text string, canBeEmpty bool) (*KeyInfo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		if canBeEmpty {
			return nil, nil
		}
		return nil, missing(FieldPGPKey)
	}

	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(text))
	if err != nil {
		return nil, &KeyParseError{Err: err}
	}
	if len(entities) != 1 {
		return nil, &KeyParseError{Err: fmt.Errorf("expected one key, found %d", len(entities))}
	}

	entity := entities[0]
	if entity.PrivateKey != nil {
		return nil, &KeyParseError{Err: errors.New("private key material is not accepted")}
	}

	info := &KeyInfo{
		Fingerprint: strings.ToUpper(hex.EncodeToString(entity.PrimaryKey.Fingerprint[:])),
		Expiration:  keyExpiration(entity),
	}
	if info.Expiration != nil && info.Expiration.Before(now()) {
		return nil, &KeyParseError{Err: fmt.Errorf("key expired on %s", info.Expiration.Format(time.RFC3339))}
	}

	return info, nil
}

// keyExpiration reads the lifetime from the primary identity self-signature,
// falling back to the first identity by name.
func keyExpiration(entity *openpgp.Entity) *time.Time {
	names := make([]string, 0, len(entity.Identities))
	for name := range entity.Identities {
		names = append(names, name)
	}
	sort.Strings(names)

	var chosen *openpgp.Identity
	for _, name := range names {
		id := entity.Identities[name]
		if id.SelfSignature == nil {
			continue
		}
		if chosen == nil {
			chosen = id
		}
		if id.SelfSignature.IsPrimaryId != nil && *id.SelfSignature.IsPrimaryId {
			chosen = id
			break
		}
	}

	if chosen == nil || chosen.SelfSignature.KeyLifetimeSecs == nil || *chosen.SelfSignature.KeyLifetimeSecs == 0 {
		return nil
	}

	expires := entity.PrimaryKey.CreationTime.Add(time.Duration(*chosen.SelfSignature.KeyLifetimeSecs) * time.Second).UTC()
	return &expires
}

// applyKey stores info on u, or clears the key when info is nil.
func applyKey(u *models.User, text string, info *KeyInfo) {
	if info == nil {
		u.PGPKeyPublic = ""
		u.PGPKeyFingerprint = ""
		u.PGPKeyExpiration = nil
		return
	}
	u.PGPKeyPublic = strings.TrimSpace(text)
	u.PGPKeyFingerprint = info.Fingerprint
	u.PGPKeyExpiration = info.Expiration
}

func storedKeyState(u *models.User) KeyState {
	if u.PGPKeyFingerprint == "" {
		return KeyAbsent
	}
	return KeyValid
}
