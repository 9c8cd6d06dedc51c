package signer

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"asset-pipeline/internal/domain/asset"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret-with-enough-bytes"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(testSecret, "https://api.example.com/").WithClock(fixedClock(now))

	for _, bucket := range []asset.Bucket{asset.BucketPublic, asset.BucketPrivate} {
		for _, ttl := range []time.Duration{time.Second, 10 * time.Minute, time.Hour} {
			capability, err := s.Issue(bucket, "thumbnails/HP-ANM-0001.png", ttl)
			require.NoError(t, err)

			u, err := url.Parse(capability.URL)
			require.NoError(t, err)
			assert.Equal(t, "api.example.com", u.Host)
			assert.Equal(t, RoutePath(bucket), u.Path)

			q := u.Query()
			assert.True(t, s.Verify(bucket, q.Get(QueryKey), q.Get(QueryExpires), q.Get(QuerySig)))

			exp, err := strconv.ParseInt(q.Get(QueryExpires), 10, 64)
			require.NoError(t, err)
			assert.Equal(t, now.Add(ttl).Unix(), exp)

			s.WithClock(fixedClock(time.Unix(exp+1, 0)))
			assert.False(t, s.Verify(bucket, q.Get(QueryKey), q.Get(QueryExpires), q.Get(QuerySig)))
			s.WithClock(fixedClock(now))
		}
	}
}

func TestVerify_ExactExpiryStillValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(testSecret, "").WithClock(fixedClock(now))
	exp := now.Unix()

	assert.True(t, s.Verify(asset.BucketPublic, "k/a.png", strconv.FormatInt(exp, 10), s.Sign(asset.BucketPublic, "k/a.png", exp)))
}

func TestVerify_SingleByteMutationFails(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(testSecret, "").WithClock(fixedClock(now))
	exp := now.Add(time.Minute).Unix()
	expires := strconv.FormatInt(exp, 10)
	sig := s.Sign(asset.BucketPrivate, "documents/a.pdf", exp)

	for i := 0; i < len(sig); i++ {
		mutated := []byte(sig)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		assert.False(t, s.Verify(asset.BucketPrivate, "documents/a.pdf", expires, string(mutated)), "position %d", i)
	}

	assert.True(t, s.Verify(asset.BucketPrivate, "documents/a.pdf", expires, sig))
	assert.False(t, s.Verify(asset.BucketPrivate, "documents/a.pdf", expires, strings.ToUpper(sig)), "uppercase hex")
	assert.False(t, s.Verify(asset.BucketPrivate, "documents/a.pdf", "+"+expires, sig), "signed expiry")
	assert.False(t, s.Verify(asset.BucketPrivate, "documents/a.pdf", "0"+expires, sig), "zero-padded expiry")
	assert.False(t, s.Verify(asset.BucketPrivate, "documents/a.pdf", expires+" ", sig), "trailing space")
}

func TestVerify_BucketScoping(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(testSecret, "").WithClock(fixedClock(now))
	exp := now.Add(time.Minute).Unix()
	sig := s.Sign(asset.BucketPublic, "k", exp)

	assert.True(t, s.Verify(asset.BucketPublic, "k", strconv.FormatInt(exp, 10), sig))
	assert.False(t, s.Verify(asset.BucketPrivate, "k", strconv.FormatInt(exp, 10), sig))
}

func TestVerify_RejectsMalformedInput(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(testSecret, "").WithClock(fixedClock(now))
	exp := now.Add(time.Minute).Unix()
	sig := s.Sign(asset.BucketPublic, "k", exp)

	assert.False(t, s.Verify(asset.BucketPublic, "k", "soon", sig))
	assert.False(t, s.Verify(asset.BucketPublic, "k", "", sig))
	assert.False(t, s.Verify(asset.Bucket("archive"), "k", strconv.FormatInt(exp, 10), sig))
	assert.False(t, s.Verify(asset.BucketPublic, "k", strconv.FormatInt(exp, 10), "not-hex"))
	assert.False(t, s.Verify(asset.BucketPublic, "k", strconv.FormatInt(exp, 10), ""))
	assert.False(t, s.Verify(asset.BucketPublic, "other", strconv.FormatInt(exp, 10), sig))
}

func TestVerify_DifferentSecretFails(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := New(testSecret, "").WithClock(fixedClock(now))
	b := New(strings.Repeat("x", 40), "").WithClock(fixedClock(now))
	exp := now.Add(time.Minute).Unix()

	assert.False(t, b.Verify(asset.BucketPublic, "k", strconv.FormatInt(exp, 10), a.Sign(asset.BucketPublic, "k", exp)))
}

func TestIssue_Validation(t *testing.T) {
	s := New(testSecret, "")

	_, err := s.Issue(asset.Bucket("nope"), "k", time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = s.Issue(asset.BucketPublic, "../etc/passwd", time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = s.Issue(asset.BucketPublic, "k", 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("thumbnails/HP-ANM-0001.png"))
	assert.False(t, ValidKey(""))
	assert.False(t, ValidKey("/abs"))
	assert.False(t, ValidKey("a//b"))
	assert.False(t, ValidKey("a/../b"))
	assert.False(t, ValidKey(`a\b`))
}
