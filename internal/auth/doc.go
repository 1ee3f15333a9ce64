// Package auth authenticates API requests and resolves the acting user.
//
// Two credentials are accepted:
//   - a session cookie issued by POST /api/auth/login (scs, stored next to the
//     library data in SQLite or in memory on PostgreSQL)
//   - an API token sent as "Authorization: Bearer <token>"; only its SHA-256
//     hash is stored
//
// Cookie-authenticated writes are CSRF protected; bearer requests are not.
//
// Handlers read the acting user with Actor, which returns the
// circulation.AuthContext passed to every circulation operation:
//
//	actor := auth.Actor(c)
//	receipt, err := svc.CreateLoan(ctx, actor, req)
//
// Configuration:
//
//	AUTH_SESSION_SECRET=<hex-32-bytes>  # Auto-generated if empty
//	AUTH_SESSION_LIFETIME=24h
//	AUTH_TOKEN_EXPIRY=720h
//	AUTH_BCRYPT_COST=12
//	AUTH_SECURE_COOKIES=true
//	AUTH_CSRF_ENABLED=true
//	AUTH_MAX_LOGIN_ATTEMPTS=5
//	AUTH_LOCKOUT_DURATION=30m
package auth
