// Package auth provides HMAC-based API key authentication for the gRPC and
// HTTP surfaces of the device service.
package auth

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const principalKey = contextKey("principal")

// HeaderAPIKey carries the key in gRPC metadata and HTTP requests.
const HeaderAPIKey = "x-api-key"

// Queries defines the database operations needed for authentication.
// Implemented by *db.Queries.
type Queries interface {
	GetContext(ctx context.Context, name string, dest any, args ...any) error
	SelectContext(ctx context.Context, name string, dest any, args ...any) error
	ExecContext(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Principal identifies the key a request was authenticated with.
type Principal struct {
	KeyID string
	Name  string
}

// KeyInfo is a stored API key without its hash.
type KeyInfo struct {
	ID         string       `db:"api_key_id"`
	Name       string       `db:"name"`
	SecretID   string       `db:"secret_id"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
	}
}

// Authenticate validates an API key and returns the key it matched.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (Principal, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return Principal{}, err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return Principal{}, ErrUnknownKey
	}

	var row struct {
		APIKeyID   string       `db:"api_key_id"`
		Name       string       `db:"name"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	err = a.queries.GetContext(ctx, "get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return Principal{}, ErrInvalidKey
	}
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if row.RevokedAt.Valid {
		return Principal{}, ErrKeyRevoked
	}

	// 1-minute throttle keeps chatty clients from turning reads into writes
	if shouldUpdateLastUsed(row.LastUsedAt) {
		_, _ = a.queries.ExecContext(ctx, "update-last-used", time.Now().UTC(), row.APIKeyID)
	}

	return Principal{KeyID: row.APIKeyID, Name: row.Name}, nil
}

func shouldUpdateLastUsed(lastUsed sql.NullTime) bool {
	if !lastUsed.Valid {
		return true
	}
	return time.Since(lastUsed.Time) > time.Minute
}

// CreateKey generates and stores a key signed with the secret secretID.
// An empty secretID selects the newest secret. The plaintext key is only
// ever returned here.
func (a *Authenticator) CreateKey(ctx context.Context, name, secretID string) (string, KeyInfo, error) {
	if name == "" {
		return "", KeyInfo{}, fmt.Errorf("key name must not be empty")
	}
	if secretID == "" {
		secretID = a.newestSecret()
	}
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", KeyInfo{}, ErrUnknownKey
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", KeyInfo{}, fmt.Errorf("generate key id: %w", err)
	}
	key, err := GenerateAPIKey(secretID)
	if err != nil {
		return "", KeyInfo{}, err
	}

	info := KeyInfo{
		ID:        hex.EncodeToString(id[:]),
		Name:      name,
		SecretID:  secretID,
		CreatedAt: time.Now().UTC(),
	}
	_, err = a.queries.ExecContext(ctx, "insert-api-key",
		info.ID, info.Name, info.SecretID, ComputeHMAC(secret, key), info.CreatedAt)
	if err != nil {
		return "", KeyInfo{}, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return key, info, nil
}

// secret ids are UUIDv7, so the greatest sorts last in time
func (a *Authenticator) newestSecret() string {
	var newest string
	for id := range a.secrets {
		newest = max(newest, id)
	}
	return newest
}

// RevokeKey marks a key revoked. Revoking twice reports ErrInvalidKey.
func (a *Authenticator) RevokeKey(ctx context.Context, keyID string) error {
	res, err := a.queries.ExecContext(ctx, "revoke-api-key", time.Now().UTC(), keyID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvalidKey
	}
	return nil
}

// ListKeys returns every stored key ordered by creation.
func (a *Authenticator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	var keys []KeyInfo
	if err := a.queries.SelectContext(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return keys, nil
}

// grpcError maps an authentication failure onto a status. Revoked keys are
// PERMISSION_DENIED, store failures UNAVAILABLE, everything else
// UNAUTHENTICATED.
func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrDatabase):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Unauthenticated, err.Error())
	}
}

func (a *Authenticator) authenticateMetadata(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	keys := md.Get(HeaderAPIKey)
	if len(keys) == 0 {
		return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
	}
	p, err := a.Authenticate(ctx, keys[0])
	if err != nil {
		return nil, grpcError(err)
	}
	return WithPrincipal(ctx, p), nil
}

// UnaryInterceptor authenticates unary calls. Methods listed in skip (full
// method names) bypass authentication.
func (a *Authenticator) UnaryInterceptor(skip ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if slices.Contains(skip, info.FullMethod) {
			return handler(ctx, req)
		}
		ctx, err := a.authenticateMetadata(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor authenticates streams once, before the handler runs.
func (a *Authenticator) StreamInterceptor(skip ...string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if slices.Contains(skip, info.FullMethod) {
			return handler(srv, ss)
		}
		ctx, err := a.authenticateMetadata(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

// Middleware authenticates HTTP requests. The key is read from the
// x-api-key header or an Authorization bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				key = strings.TrimSpace(token)
			}
		}
		if key == "" {
			writeHTTPError(w, http.StatusUnauthorized, ErrMissingKey)
			return
		}

		p, err := a.Authenticate(r.Context(), key)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		case errors.Is(err, ErrKeyRevoked):
			writeHTTPError(w, http.StatusForbidden, err)
		case errors.Is(err, ErrDatabase):
			writeHTTPError(w, http.StatusServiceUnavailable, ErrDatabase)
		default:
			writeHTTPError(w, http.StatusUnauthorized, err)
		}
	})
}

func writeHTTPError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(code)
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	_, _ = w.Write(body)
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated key, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
