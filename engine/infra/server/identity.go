package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/compozy/transcripts/engine/quota"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserPlan = "X-User-Plan"

	AnonymousUser    = "anonymous"
	maxIdentityChars = 128
)

// identity is who a request is attributed to. Key scopes rate limiting;
// UserID and Plan scope quota.
type identity struct {
	Key    string
	UserID string
	Plan   string
}

// resolveIdentity reads the untrusted identity headers. Requests without a
// user id are limited per client IP and metered as the anonymous free user.
func resolveIdentity(c *gin.Context) identity {
	userID := sanitizeIdentifier(c.GetHeader(HeaderUserID))
	if userID == "" {
		return identity{
			Key:    "ip:" + c.ClientIP(),
			UserID: AnonymousUser,
			Plan:   quota.PlanFree,
		}
	}
	return identity{
		Key:    "user:" + userID,
		UserID: userID,
		Plan:   strings.ToLower(sanitizeIdentifier(c.GetHeader(HeaderUserPlan))),
	}
}

// sanitizeIdentifier keeps [A-Za-z0-9._:@-] and truncates to 128 characters.
func sanitizeIdentifier(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range raw {
		if b.Len() >= maxIdentityChars {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == ':', r == '@', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
