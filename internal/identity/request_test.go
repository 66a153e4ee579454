package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func signalsFor(header, body string) Signals {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/api/votes/p", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("User-Agent", "Firefox")
	if header != "" {
		req.Header.Set(FingerprintHeader, header)
	}
	c.Request = req
	return FromRequest(c, body)
}

func TestFromRequestPrefersWellFormedHeader(t *testing.T) {
	s := signalsFor("header-fingerprint", "body-fingerprint")
	assert.Equal(t, "header-fingerprint", s.Fingerprint)
	assert.True(t, s.Declared)
	assert.Equal(t, HashIP("198.51.100.4"), s.IPHash)
}

func TestFromRequestUsesBodyWhenHeaderMissing(t *testing.T) {
	s := signalsFor("", "body-fingerprint")
	assert.Equal(t, "body-fingerprint", s.Fingerprint)
}

func TestFromRequestIgnoresMalformedHeader(t *testing.T) {
	s := signalsFor("short", "body-fingerprint")
	assert.Equal(t, "body-fingerprint", s.Fingerprint)
	assert.True(t, s.Declared)
}

func TestFromRequestFallsBackWhenNothingIsWellFormed(t *testing.T) {
	s := signalsFor("short", "tiny")
	assert.False(t, s.Declared)
	assert.Equal(t, fallbackFingerprint(HashIP("198.51.100.4"), "Firefox"), s.Fingerprint)
}
