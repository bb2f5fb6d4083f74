package auth

import (
	"slices"
	"strings"
)

// Roles carried in the "role" claim.
const (
	// RoleAdmin manages templates and may call every endpoint.
	RoleAdmin = "admin"
	// RoleService is held by upstream producers and provider callbacks.
	RoleService = "service"
	// RoleViewer reads notifications, preferences and reports.
	RoleViewer = "viewer"
)

// Permission lists the methods and path patterns a role may use.
// A pattern ending in "/*" matches the prefix itself and every subpath.
type Permission struct {
	AllowedMethods []string
	AllowedPaths   []string
}

// RolePermissions maps each role to its permission set.
var RolePermissions = map[string]Permission{
	RoleAdmin: {
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedPaths:   []string{"/*"},
	},
	RoleService: {
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedPaths: []string{
			"/notifications",
			"/notifications/*",
			"/callbacks/*",
			"/users/*",
			"/templates",
			"/templates/*",
		},
	},
	RoleViewer: {
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedPaths: []string{
			"/notifications/*",
			"/users/*",
			"/templates",
			"/templates/*",
			"/analytics/*",
		},
	},
}

// servicePostDenied are admin-only writes that RoleService's patterns
// would otherwise allow.
var servicePostDenied = []string{"/templates"}

func checkRolePermission(role, method, path string) bool {
	if role == "" {
		return false
	}
	perm, ok := RolePermissions[role]
	if !ok {
		return false
	}
	if !slices.Contains(perm.AllowedMethods, method) {
		return false
	}
	if role == RoleService && method != "GET" && method != "OPTIONS" &&
		matchesPathPattern(path, wildcard(servicePostDenied)) {
		return false
	}
	return matchesPathPattern(path, perm.AllowedPaths)
}

func wildcard(prefixes []string) []string {
	out := make([]string, len(prefixes))
	for i, p := range prefixes {
		out[i] = p + "/*"
	}
	return out
}

// matchesPathPattern reports whether path matches any pattern.
//
//	matchesPathPattern("/notifications/1/retry", []string{"/notifications/*"}) // true
//	matchesPathPattern("/notificationsx", []string{"/notifications/*"})        // false
func matchesPathPattern(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}
