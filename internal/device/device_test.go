package device

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeLinux   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	chromeLinuxV2 = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	firefoxWin    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

func TestDescriptor(t *testing.T) {
	assert.Equal(t, "Chrome/Linux", Descriptor(chromeLinux))
	assert.Equal(t, "Firefox/Windows", Descriptor(firefoxWin))
	assert.Equal(t, Unknown, Descriptor(""))
	assert.Equal(t, Unknown, Descriptor("   "))
}

func TestDescriptor_IgnoresVersion(t *testing.T) {
	assert.Equal(t, Descriptor(chromeLinux), Descriptor(chromeLinuxV2))
	assert.NotEqual(t, Descriptor(chromeLinux), Descriptor(firefoxWin))
}

func TestFromRequestAndRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.Header.Set("User-Agent", firefoxWin)
	r.RemoteAddr = "203.0.113.7:51234"

	assert.Equal(t, "Firefox/Windows", FromRequest(r))
	assert.Equal(t, "203.0.113.7", RemoteAddr(r))

	r.RemoteAddr = "203.0.113.8"
	assert.Equal(t, "203.0.113.8", RemoteAddr(r))
}
