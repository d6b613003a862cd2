package utils

import "strings"

// SplitScopes splits a space separated scope string, dropping empty entries.
func SplitScopes(scope string) []string {
	fields := strings.Fields(scope)
	if fields == nil {
		return []string{}
	}
	return fields
}

// JoinScopes is the inverse of SplitScopes.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Contains reports whether v is in values.
func Contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
