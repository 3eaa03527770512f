package app

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://apply.example.com"})

	req := httptest.NewRequest("GET", "/v1/ws/sessions/s-1", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://apply.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}

func TestOriginChecker_Wildcard(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173", "*"})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	assert.True(t, check(req))
}
