// Package token mints the signed room access tokens handed to every
// transfer party, scoped by role and bounded by TTL.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles understood by the minter. Any other role string receives the
// caller capability set.
const (
	RoleAgent       = "agent"
	RoleCaller      = "caller"
	RoleParticipant = "participant"
)

// DefaultTTL bounds tokens minted without an explicit TTL.
const DefaultTTL = time.Hour

// ErrNoSigningKey is returned when the minter has no provider
// credentials configured.
var ErrNoSigningKey = errors.New("token: room provider key and secret not configured")

// VideoGrant mirrors the room provider's access grant claim.
type VideoGrant struct {
	Room           string `json:"room,omitempty"`
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	RoomList       bool   `json:"roomList,omitempty"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

// Claims is the signed token payload.
type Claims struct {
	jwt.RegisteredClaims
	Video VideoGrant `json:"video"`
}

// Minter issues signed, time-bounded, role-scoped access tokens.
type Minter struct {
	apiKey string
	secret []byte
	ttl    time.Duration
}

// NewMinter creates a minter signing with the room provider's API
// secret and identifying itself by the API key. ttl <= 0 selects
// DefaultTTL.
func NewMinter(apiKey, apiSecret string, ttl time.Duration) *Minter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Minter{apiKey: apiKey, secret: []byte(apiSecret), ttl: ttl}
}

// MintToken issues a token for identity in room. Role "agent" grants
// publish, subscribe, and publish-data; every other role grants
// publish and subscribe only. ttl <= 0 selects the minter default.
func (m *Minter) MintToken(room, identity, role string, ttl time.Duration) (string, error) {
	if m.apiKey == "" || len(m.secret) == 0 {
		return "", ErrNoSigningKey
	}
	if room == "" || identity == "" {
		return "", fmt.Errorf("token: room and identity are required")
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	grant := VideoGrant{
		Room:         room,
		RoomJoin:     true,
		CanPublish:   true,
		CanSubscribe: true,
	}
	if role == RoleAgent {
		grant.CanPublishData = true
	}

	return m.sign(identity, grant, ttl)
}

// MintServiceToken issues a short-lived admin token for the room
// provider's server API, scoped to one room.
func (m *Minter) MintServiceToken(room string, ttl time.Duration) (string, error) {
	if m.apiKey == "" || len(m.secret) == 0 {
		return "", ErrNoSigningKey
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	grant := VideoGrant{
		Room:      room,
		RoomAdmin: true,
		RoomList:  true,
	}
	return m.sign(m.apiKey, grant, ttl)
}

func (m *Minter) sign(subject string, grant VideoGrant, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   subject,
			ID:        uuid.NewString(),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: grant,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token: signing failed: %w", err)
	}
	return signed, nil
}

// Parse validates a token minted by this service and returns its
// claims. Expired or tampered tokens are rejected.
func (m *Minter) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("token: unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token: invalid token")
	}
	return claims, nil
}
