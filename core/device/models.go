package device

import (
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-chat/core"
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

var Platforms = []Platform{PlatformAndroid, PlatformIOS, PlatformWeb}

func (p Platform) IsValid() bool {
	for _, pf := range Platforms {
		if p == pf {
			return true
		}
	}
	return false
}

// Token is a push registration token of one of a user's devices.
type Token struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Platform   Platform          `json:"platform"`
	Token      string            `json:"-"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`
	IsActive   bool              `json:"is_active"`
	LastUsedAt *time.Time        `json:"last_used_at"` // UTC
	CreatedAt  time.Time         `json:"created_at"`   // UTC
	UpdatedAt  time.Time         `json:"updated_at"`   // UTC
}

// lastSeen is the most recent moment the token is known to have been valid.
func (t Token) lastSeen() time.Time {
	if t.LastUsedAt != nil && t.LastUsedAt.After(t.UpdatedAt) {
		return *t.LastUsedAt
	}
	return t.UpdatedAt
}

// NewToken contains information needed to register a device Token.
type NewToken struct {
	Token      string            `json:"token" validate:"required,notblank,max=4096"`
	Platform   Platform          `json:"platform" validate:"required,oneof=android ios web"`
	DeviceInfo map[string]string `json:"device_info"`
}

func (nt *NewToken) clean() {
	nt.Token = core.CleanString(nt.Token)
	nt.Platform = Platform(core.CleanString(string(nt.Platform), true /* lower */))
}

func (nt NewToken) build(userID string, now time.Time) Token {
	return Token{
		ID:         uuid.NewString(),
		UserID:     userID,
		Platform:   nt.Platform,
		Token:      nt.Token,
		DeviceInfo: nt.DeviceInfo,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
