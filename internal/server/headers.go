package server

import "net/http"

// HeaderConfig lists the headers added to every response. Empty values are
// left out.
type HeaderConfig struct {
	AllowOrigin  string
	AllowMethods string
	AllowHeaders string
	CacheControl string
}

// DevHeaders returns the headers a local development server wants: any
// origin may read the site, and nothing gets cached, so edits show up on
// reload.
func DevHeaders(cors, noCache bool) HeaderConfig {
	var cfg HeaderConfig
	if cors {
		cfg.AllowOrigin = "*"
		cfg.AllowMethods = "GET, POST, OPTIONS"
		cfg.AllowHeaders = "Content-Type"
	}
	if noCache {
		cfg.CacheControl = "no-cache, no-store, must-revalidate"
	}
	return cfg
}

// Headers returns middleware that sets the configured headers on every
// response.
func Headers(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AllowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", cfg.AllowOrigin)
			}
			if cfg.AllowMethods != "" {
				w.Header().Set("Access-Control-Allow-Methods", cfg.AllowMethods)
			}
			if cfg.AllowHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", cfg.AllowHeaders)
			}
			if cfg.CacheControl != "" {
				w.Header().Set("Cache-Control", cfg.CacheControl)
			}
			next.ServeHTTP(w, r)
		})
	}
}
