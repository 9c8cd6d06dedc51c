package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMessage_ScrubsSignatures(t *testing.T) {
	in := "PUT https://api.example.com/uploads/signed/public?key=thumbnails/HP-ANM-0001.png&expires=1700000000&sig=deadbeef"
	out := SanitizeMessage(in)

	assert.Contains(t, out, "key=thumbnails/HP-ANM-0001.png")
	assert.Contains(t, out, "&sig="+redactedPlaceholder)
	assert.NotContains(t, out, "deadbeef")
}

func TestSanitizeMessage_ScrubsBearer(t *testing.T) {
	out := SanitizeMessage("Authorization: Bearer abc.def.ghi")
	assert.NotContains(t, out, "abc.def.ghi")
}

func TestSanitizeKVs(t *testing.T) {
	kvs := sanitizeKVs([]interface{}{
		"worker_token", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ3b3JrZXIifQ.c2ln",
		"design", "kept",
		"sig", "abcdef",
		"err", errors.New("fetch ?sig=abc failed"),
		"dangling",
	})

	assert.Equal(t, redactedPlaceholder, kvs[1])
	assert.Equal(t, "kept", kvs[3])
	assert.Equal(t, redactedPlaceholder, kvs[5])
	assert.Equal(t, "fetch ?sig="+redactedPlaceholder+" failed", kvs[7])
	assert.Equal(t, "dangling", kvs[8])
}
