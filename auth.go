package rconkit

import "crypto/subtle"

// AuthCommand is the command a client sends to present the shared secret.
const AuthCommand = "rcon_password"

const (
	replyAuthYes = "authyes"
	replyAuthNo  = "authno"
)

// Authenticated reports whether the connection presented the secret.
func (c *Connection) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// FailedAttempts returns how many authentication attempts were rejected.
// The counter is informational; no lockout is applied.
func (c *Connection) FailedAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failedAttempts
}

// authenticate moves the connection to authenticated when both secrets are
// non-empty and identical. Once authenticated, it stays so.
func (c *Connection) authenticate(provided, configured string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if provided != "" && configured != "" &&
		subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1 {
		c.authenticated = true
		return true
	}
	c.failedAttempts++
	return false
}

func (c *Connection) recordFailure() {
	c.mu.Lock()
	c.failedAttempts++
	c.mu.Unlock()
}

// IsAuthenticated reports whether sock belongs to an authenticated session.
// Unknown handles are registered as unauthenticated.
func (r *Registry) IsAuthenticated(sock Socket) bool {
	return r.GetOrCreate(sock).Authenticated()
}

// TryAuthenticate checks provided against configured for sock's session.
func (r *Registry) TryAuthenticate(sock Socket, provided, configured string) bool {
	return r.authenticate(r.GetOrCreate(sock), provided, configured)
}

func (r *Registry) authenticate(conn *Connection, provided, configured string) bool {
	ok := conn.authenticate(provided, configured)
	if ok {
		r.log.Infow("rcon client authenticated", "conn", conn.ID, "remote", conn.Remote)
	} else {
		r.log.Warnw("rcon authentication failed", "conn", conn.ID, "remote", conn.Remote, "attempts", conn.FailedAttempts())
	}
	return ok
}
