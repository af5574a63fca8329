/**
 * @description
 * This file contains custom middleware for the HTTP router. Authentication
 * validates RS256 JWTs against the identity provider's JWKS endpoint and
 * places the authenticated actor (subject id plus marketplace role) on the
 * request context for handlers to consume.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/collabry/offer-service/internal/domain"
)

type actorContextKey string

const authedActorKey actorContextKey = "authedActor"

// AuthMiddleware creates a middleware that validates bearer JWTs against the
// identity provider's JWKS and attaches the resulting actor to the context.
func AuthMiddleware(jwksURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("kid not found in token header")
				}
				publicKey, err := signingKeys.key(jwksURL, kid)
				if err != nil {
					return nil, fmt.Errorf("failed to get public key: %w", err)
				}
				return publicKey, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			if expectedIss := os.Getenv("AUTH_ISSUER"); expectedIss != "" {
				if iss, ok := claims["iss"].(string); !ok || iss != expectedIss {
					http.Error(w, "Invalid issuer", http.StatusUnauthorized)
					return
				}
			}

			subject, ok := claims["sub"].(string)
			if !ok || subject == "" {
				http.Error(w, "Subject not found in token", http.StatusUnauthorized)
				return
			}
			roleClaim, _ := claims["role"].(string)
			role, ok := parseRole(roleClaim)
			if !ok {
				http.Error(w, "Unknown role in token", http.StatusUnauthorized)
				return
			}

			actor := domain.Actor{ID: subject, Role: role}
			ctx := context.WithValue(r.Context(), authedActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly rejects any request whose authenticated actor is not an operator.
// It must run after AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := GetActor(r.Context())
		if !ok || actor.Role != domain.RoleAdmin {
			// 404 keeps the admin surface invisible to non-operators.
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseRole(raw string) (domain.Role, bool) {
	switch domain.Role(raw) {
	case domain.RoleBrand, domain.RoleCreator, domain.RoleAdmin:
		return domain.Role(raw), true
	}
	return "", false
}

// GetActor retrieves the authenticated actor from the request context.
func GetActor(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(authedActorKey).(domain.Actor)
	return actor, ok
}

// jwksKeyCache holds the identity provider's signing keys in memory so a
// burst of requests does not become a burst of JWKS fetches. A kid missing
// from the cached document forces a refetch, which covers key rotation.
type jwksKeyCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

var signingKeys = &jwksKeyCache{ttl: 5 * time.Minute}

func (c *jwksKeyCache) key(jwksURL, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.keys[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		return key, nil
	}

	keys, err := fetchJWKS(jwksURL)
	if err != nil {
		return nil, err
	}
	c.keys = keys
	c.fetchedAt = time.Now()

	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	return key, nil
}

// fetchJWKS downloads and parses the JWKS document into usable public keys.
func fetchJWKS(jwksURL string) (map[string]*rsa.PublicKey, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(jwksURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		parsed, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key %s: %w", key.Kid, err)
		}
		keys[key.Kid] = parsed
	}
	return keys, nil
}

// parseRSAPublicKey parses an RSA public key from base64url modulus and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	if len(eb) == 3 {
		// Common case for 65537
		exp = uint64(eb[0])<<16 | uint64(eb[1])<<8 | uint64(eb[2])
	} else {
		for _, b := range eb {
			exp = (exp << 8) | uint64(b)
		}
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}
