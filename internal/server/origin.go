// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const allowAnyOrigin = "*"

// normalizeOrigins lowercases scheme and host of every configured origin and
// drops entries that are not absolute URLs. The wildcard is kept as is.
func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == allowAnyOrigin {
			normalized = append(normalized, allowAnyOrigin)
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      *zap.Logger
}

func newOriginPolicy(origins []string, logger *zap.Logger) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		log:     logger,
	}
	for _, origin := range normalizeOrigins(origins) {
		if origin == allowAnyOrigin {
			p.allowAll = true
			continue
		}
		p.allowed[origin] = struct{}{}
	}
	return p
}

func (p *originPolicy) isAllowed(r *http.Request) bool {
	if p.allowAll {
		return true
	}

	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	_, exists := p.allowed[normalizedOrigin]
	return exists
}

func (p *originPolicy) checkOrigin(r *http.Request) bool {
	if p.isAllowed(r) {
		return true
	}

	p.log.Warn("Blocked WebSocket connection from disallowed origin",
		zap.String("origin", r.Header.Get("Origin")),
		zap.String("remote", r.RemoteAddr))
	return false
}
