// Package signer issues and verifies short-lived HMAC capability URLs that
// grant a single write to one object key in one bucket.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"asset-pipeline/internal/domain/asset"
	apperrors "asset-pipeline/pkg/errors"
)

const (
	routePrefix = "/uploads/signed/"

	QueryKey     = "key"
	QueryExpires = "expires"
	QuerySig     = "sig"

	errInvalidBucket = "invalid bucket"
	errInvalidKey    = "invalid object key"
	errInvalidTTL    = "ttl must be positive"
)

// Capability is an issued write grant.
type Capability struct {
	URL       string    `json:"url"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Signer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

func New(secret, baseURL string) *Signer {
	return &Signer{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// RoutePath is the logical route for a bucket. It is part of the signed
// payload so a signature cannot be replayed against the other bucket.
func RoutePath(bucket asset.Bucket) string {
	return routePrefix + string(bucket)
}

// Sign returns the hex HMAC-SHA256 of "path:key:expires".
func (s *Signer) Sign(bucket asset.Bucket, key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(RoutePath(bucket) + ":" + key + ":" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Issue(bucket asset.Bucket, key string, ttl time.Duration) (*Capability, error) {
	if !bucket.Valid() {
		return nil, apperrors.Validation(errInvalidBucket)
	}
	if !ValidKey(key) {
		return nil, apperrors.Validation(errInvalidKey)
	}
	if ttl <= 0 {
		return nil, apperrors.Validation(errInvalidTTL)
	}

	expiresAt := s.now().Add(ttl).Truncate(time.Second)
	expires := expiresAt.Unix()

	query := url.Values{}
	query.Set(QueryKey, key)
	query.Set(QueryExpires, strconv.FormatInt(expires, 10))
	query.Set(QuerySig, s.Sign(bucket, key, expires))

	return &Capability{
		URL:       fmt.Sprintf("%s%s?%s", s.baseURL, RoutePath(bucket), query.Encode()),
		Bucket:    string(bucket),
		Key:       key,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a presented capability. It fails closed on an unknown
// bucket, a non-canonical or past expiry, or a signature mismatch. Only the
// exact strings Issue produces are accepted: lowercase hex and plain digits.
func (s *Signer) Verify(bucket asset.Bucket, key, expires, sig string) bool {
	if !bucket.Valid() || !ValidKey(key) || !digitsOnly(expires) {
		return false
	}

	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || strconv.FormatInt(exp, 10) != expires {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}

	return hmac.Equal([]byte(sig), []byte(s.Sign(bucket, key, exp)))
}

func digitsOnly(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// ValidKey rejects empty, absolute and traversal keys.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
