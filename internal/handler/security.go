package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
)

// APIKeyHeader carries the staff API key.
const APIKeyHeader = "api_key"

// StudentIDHeader carries the signed-in student's id. The campus sign-in
// gateway in front of the API sets it; the value is trusted as is.
const StudentIDHeader = "X-Student-ID"

// Staff authenticates staff requests via HMAC-SHA256 hashed API keys.
type Staff struct {
	pepper []byte
	hashes [][]byte
}

// NewStaff creates a Staff authenticator from hex-encoded key hashes. With no
// hashes every staff request is refused.
func NewStaff(pepper []byte, keyHashes []string) (*Staff, error) {
	s := &Staff{pepper: pepper}
	for _, h := range keyHashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, errors.Wrapf(err, "decode key hash %q", h)
		}
		if len(b) != sha256.Size {
			return nil, errors.Errorf("key hash %q: want %d bytes, got %d", h, sha256.Size, len(b))
		}
		s.hashes = append(s.hashes, b)
	}
	return s, nil
}

// HashKey returns the hex HMAC-SHA256 of key, the form stored in configuration.
func HashKey(pepper []byte, key string) string {
	return hex.EncodeToString(sum(pepper, key))
}

func sum(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Authenticate reports whether key matches a configured hash. Every hash is
// compared in constant time.
func (s *Staff) Authenticate(key string) bool {
	if key == "" {
		return false
	}
	hash := sum(s.pepper, key)
	ok := 0
	for _, stored := range s.hashes {
		ok |= subtle.ConstantTimeCompare(hash, stored)
	}
	return ok == 1
}

// Require rejects requests without a valid staff key.
func (s *Staff) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Authenticate(r.Header.Get(APIKeyHeader)) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSelf admits staff, or the student whose id is the path value named
// param. Student history exposes email and roll number, so it is never public.
func (s *Staff) RequireSelf(param string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticate(r.Header.Get(APIKeyHeader)) {
			next.ServeHTTP(w, r)
			return
		}
		caller := r.Header.Get(StudentIDHeader)
		switch {
		case caller == "":
			writeError(w, http.StatusUnauthorized, "unauthorized")
		case caller != r.PathValue(param):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			next.ServeHTTP(w, r)
		}
	})
}
