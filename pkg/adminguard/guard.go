package adminguard

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// Guard signs and verifies admin tokens.
type Guard struct {
	config Config
	signer jose.Signer

	mu   sync.Mutex
	seen map[string]int64 // jti -> exp
}

// New creates a Guard. At least one of PrivateKey and PublicKey must be set.
func New(cfg Config) (*Guard, error) {
	if cfg.PublicKey == nil && cfg.PrivateKey != nil {
		cfg.PublicKey = cfg.PrivateKey.Public().(ed25519.PublicKey)
	}
	if cfg.PublicKey == nil {
		return nil, fmt.Errorf("public key is required")
	}
	if cfg.MaxTokenAge <= 0 {
		cfg.MaxTokenAge = DefaultMaxTokenAge
	}
	if cfg.ClockSkewTolerance <= 0 {
		cfg.ClockSkewTolerance = DefaultClockSkewTolerance
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Guard{
		config: cfg,
		seen:   make(map[string]int64),
	}

	if cfg.PrivateKey != nil {
		opts := &jose.SignerOptions{}
		opts.WithType("JWT")
		if cfg.KeyID != "" {
			opts.WithHeader("kid", cfg.KeyID)
		}
		signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: cfg.PrivateKey}, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create signer: %w", err)
		}
		g.signer = signer
	}

	return g, nil
}

// OwnerKey returns the public key tokens are verified against.
func (g *Guard) OwnerKey() OwnerKey {
	return OwnerKey{PublicKey: g.config.PublicKey}
}

// SignOutbound creates an admin token for subject bound to body.
// Timestamps and jti are always set by the guard.
func (g *Guard) SignOutbound(subject string, body []byte) (string, error) {
	if g.signer == nil {
		return "", ErrNoSigningKey
	}

	now := g.config.Now()
	claims := Claims{
		Subject:   subject,
		Issuer:    g.config.Issuer,
		IssuedAt:  now.Unix(),
		Expiry:    now.Add(g.config.MaxTokenAge).Unix(),
		MessageID: uuid.New().String(),
	}
	if len(body) > 0 {
		claims.BodyHash = bodyHash(body)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	jws, err := g.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return jws.CompactSerialize()
}

// VerifyInbound validates token against body and records its jti.
// A token verifies at most once.
func (g *Guard) VerifyInbound(token string, body []byte) (*Claims, error) {
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	payload, err := jws.Verify(g.config.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.MessageID == "" {
		return nil, fmt.Errorf("%w: missing jti claim", ErrInvalidToken)
	}

	now := g.config.Now().Unix()
	skew := int64(g.config.ClockSkewTolerance.Seconds())

	if claims.Expiry < now {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt > now+skew {
		return nil, ErrTokenFuture
	}
	if now-claims.IssuedAt > int64(g.config.MaxTokenAge.Seconds())+skew {
		return nil, ErrTokenExpired
	}

	if len(body) > 0 {
		if claims.BodyHash == "" {
			return nil, fmt.Errorf("%w: missing bh claim for body", ErrIntegrityFailed)
		}
		if claims.BodyHash != bodyHash(body) {
			return nil, ErrIntegrityFailed
		}
	} else if claims.BodyHash != "" && claims.BodyHash != bodyHash(nil) {
		return nil, fmt.Errorf("%w: body is empty but bh claim is set", ErrIntegrityFailed)
	}

	if err := g.markSeen(claims.MessageID, claims.Expiry, now); err != nil {
		return nil, err
	}
	return &claims, nil
}

// markSeen records jti until it expires and rejects repeats.
func (g *Guard) markSeen(jti string, exp, now int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, e := range g.seen {
		if e < now {
			delete(g.seen, id)
		}
	}
	if _, ok := g.seen[jti]; ok {
		return ErrReplayed
	}
	g.seen[jti] = exp
	return nil
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
