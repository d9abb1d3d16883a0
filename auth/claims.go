package auth

// Claims is the decoded payload of a verified token. A Claims value belongs
// to a single request and is never cached.
type Claims map[string]any

// String returns the claim as a string, or "" when absent or not a string
func (c Claims) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Subject returns the sub claim
func (c Claims) Subject() string {
	return c.String("sub")
}
