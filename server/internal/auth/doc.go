// Package auth identifies REST and WebSocket callers.
//
// A Resolver turns an incoming request into a Principal {Role, HospitalID}
// before any core operation runs; the rest of the server only ever sees the
// Principal, never raw credentials. Three resolvers are provided:
//
//   - JWTResolver     HMAC-signed bearer tokens with role and hospital_id claims
//   - HeaderResolver  role and hospital set by a trusted gateway
//   - Anonymous       every caller is admin (auth.mode none, local development)
//
// Middleware stores the Principal in the request context. The capability
// checks (CanRead, CanUpdateState, ...) encode who may do what.
package auth
