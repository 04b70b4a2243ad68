package entity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// AnonymousPrincipal is the principal carried by unauthenticated callers.
const AnonymousPrincipal = "2vxsx-fae"

// ValidatePrincipal rejects the empty and the anonymous principal. Every
// caller-facing operation except identity echo runs it first.
func ValidatePrincipal(p string) error {
	if p == "" || p == AnonymousPrincipal {
		return Unauthorized("", "", "anonymous principal not allowed")
	}
	return nil
}

// NormalizeTag folds a free-form tag to NFC and case-folded form. Tags are
// stored as given; filters compare their normalized forms.
func NormalizeTag(tag string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(tag)))
}
