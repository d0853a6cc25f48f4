package probe

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raysh454/auditai/internal/webclient"
)

func TestClassifyAccess(t *testing.T) {
	fallback := []byte("<html>home</html>")
	tests := []struct {
		name     string
		resp     webclient.Response
		fallback []byte
		want     pathAccess
	}{
		{"ok", webclient.Response{StatusCode: http.StatusOK, Body: []byte("A=1"), FinalURL: "https://x.test/.env"}, nil, accessDirect},
		{"not found", webclient.Response{StatusCode: http.StatusNotFound}, nil, accessMissing},
		{"server error", webclient.Response{StatusCode: http.StatusInternalServerError}, nil, accessMissing},
		{"unauthorized", webclient.Response{StatusCode: http.StatusUnauthorized}, nil, accessRestricted},
		{"forbidden", webclient.Response{StatusCode: http.StatusForbidden}, nil, accessRestricted},
		{"login redirect", webclient.Response{StatusCode: http.StatusOK, Redirects: 1, FinalURL: "https://x.test/account/login?next=/admin"}, nil, accessLoginRedirect},
		{"login page itself", webclient.Response{StatusCode: http.StatusOK, FinalURL: "https://x.test/login"}, nil, accessDirect},
		{"catch-all page", webclient.Response{StatusCode: http.StatusOK, Body: fallback, FinalURL: "https://x.test/admin"}, fallback, accessMissing},
		{"differs from catch-all", webclient.Response{StatusCode: http.StatusOK, Body: []byte("admin"), FinalURL: "https://x.test/admin"}, fallback, accessDirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp
			assert.Equal(t, tt.want, classifyAccess(&resp, tt.fallback))
		})
	}
}

func TestSensitivePathContentChecks(t *testing.T) {
	byPath := make(map[string]sensitivePath)
	for _, s := range sensitivePaths {
		byPath[s.path] = s
	}

	tests := []struct {
		path string
		body string
		want bool
	}{
		{"/.env", "APP_KEY=base64:abc\nDEBUG=true\n", true},
		{"/.env", "<!DOCTYPE html><p>FOO=bar</p>", false},
		{"/.env", "nothing here", false},
		{"/.git/HEAD", "ref: refs/heads/main\n", true},
		{"/.git/HEAD", "0123456789abcdef0123456789abcdef01234567\n", true},
		{"/.git/HEAD", "<html>not git</html>", false},
		{"/backup.zip", "PK\x03\x04rest", true},
		{"/backup.zip", "<html>", false},
		{"/phpinfo.php", "<title>phpinfo()</title>", true},
		{"/phpinfo.php", "hello", false},
		{"/admin", "anything", true},
	}
	for _, tt := range tests {
		s := byPath[tt.path]
		res := pathResult{
			path:   tt.path,
			access: accessDirect,
			resp:   &webclient.Response{StatusCode: http.StatusOK, Body: []byte(tt.body)},
		}
		_, got := s.finding(res)
		assert.Equal(t, tt.want, got, "%s %q", tt.path, tt.body)
	}

	_, got := byPath["/admin"].finding(pathResult{path: "/admin", access: accessLoginRedirect})
	assert.False(t, got)
}
