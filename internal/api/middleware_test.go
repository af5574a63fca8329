package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*hits++
		doc := map[string]interface{}{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString([]byte{1, 0, 1}),
			}},
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
}

func TestJWKSCacheAvoidsRepeatFetches(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var hits int
	srv := jwksServer(t, "kid-1", &private.PublicKey, &hits)
	defer srv.Close()

	cache := &jwksKeyCache{ttl: time.Minute}
	first, err := cache.key(srv.URL, "kid-1")
	if err != nil {
		t.Fatalf("first lookup failed: %v", err)
	}
	second, err := cache.key(srv.URL, "kid-1")
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected one JWKS fetch for two lookups, got %d", hits)
	}
	if first.N.Cmp(second.N) != 0 || first.N.Cmp(private.PublicKey.N) != 0 {
		t.Errorf("cached key does not match the served key")
	}

	// An expired document gets refetched.
	cache.fetchedAt = time.Now().Add(-2 * time.Minute)
	if _, err := cache.key(srv.URL, "kid-1"); err != nil {
		t.Fatalf("lookup after expiry failed: %v", err)
	}
	if hits != 2 {
		t.Errorf("expected a refetch after the ttl, got %d fetches", hits)
	}

	// An unknown kid forces a refetch instead of a stale answer.
	if _, err := cache.key(srv.URL, "kid-2"); err == nil {
		t.Error("expected an error for an unknown kid")
	}
	if hits != 3 {
		t.Errorf("expected a refetch for an unknown kid, got %d fetches", hits)
	}
}
