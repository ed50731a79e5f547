// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	_ "embed"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"codeberg.org/kantama/portal/internal/i18n"
	"github.com/samber/lo"
)

//go:embed common_passwords.txt
var commonPasswordList string

var commonPasswords = sync.OnceValue(func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(commonPasswordList, "\n") {
		if p := strings.ToLower(strings.TrimSpace(line)); p != "" {
			set[p] = struct{}{}
		}
	}
	return set
})

const (
	// DefaultMinLength is the minimum password length when none is configured.
	DefaultMinLength = 8
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72

	similarityThreshold = 0.7
)

// Violation is one broken password rule. Code doubles as the suffix of the
// message id "password_<code>".
type Violation struct {
	Params map[string]any
	Code   string
}

// PasswordValidationError lists every rule a password breaks.
type PasswordValidationError struct {
	Violations []Violation
}

func (e *PasswordValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "weak password"
	}
	return "weak password: " + strings.Join(e.Codes(), ", ")
}

// Codes returns the codes of the broken rules in check order.
func (e *PasswordValidationError) Codes() []string {
	return lo.Map(e.Violations, func(v Violation, _ int) string { return v.Code })
}

// Messages returns the broken rules in the language of ctx.
func (e *PasswordValidationError) Messages(ctx context.Context) []string {
	return lo.Map(e.Violations, func(v Violation, _ int) string {
		return i18n.TData(ctx, "password_"+v.Code, v.Params)
	})
}

// PasswordPolicy is applied to passwords chosen through the API. Accounts
// created by bootstrap or tests bypass it.
type PasswordPolicy struct {
	MinLength int
}

// NewPasswordPolicy returns a policy with the given minimum length.
func NewPasswordPolicy(minLength int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &PasswordPolicy{MinLength: minLength}
}

// Check returns a *PasswordValidationError when password breaks a rule.
// personal holds the user's own details (email, names), which the password
// must not resemble.
func (p *PasswordPolicy) Check(password string, personal ...string) error {
	var violations []Violation

	if n := utf8.RuneCountInString(password); n < p.MinLength {
		violations = append(violations, Violation{Code: "min_length", Params: map[string]any{"Min": p.MinLength}})
	}
	if len(password) > MaxPasswordBytes {
		violations = append(violations, Violation{Code: "too_long", Params: map[string]any{"Max": MaxPasswordBytes}})
	}
	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		violations = append(violations, Violation{Code: "entirely_numeric"})
	}
	if _, ok := commonPasswords()[strings.ToLower(password)]; ok {
		violations = append(violations, Violation{Code: "common"})
	}
	if resemblesAny(strings.ToLower(password), personal) {
		violations = append(violations, Violation{Code: "too_similar"})
	}

	if len(violations) == 0 {
		return nil
	}
	return &PasswordValidationError{Violations: violations}
}

// resemblesAny reports whether password contains, is contained in, or is
// mostly made of one of the attributes. Email addresses are also compared
// by their local part.
func resemblesAny(password string, attributes []string) bool {
	if password == "" {
		return false
	}
	var candidates []string
	for _, attr := range attributes {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		candidates = append(candidates, attr)
		if local, _, ok := strings.Cut(attr, "@"); ok && len(local) >= 3 {
			candidates = append(candidates, local)
		}
	}

	return lo.ContainsBy(candidates, func(attr string) bool {
		return strings.Contains(password, attr) ||
			strings.Contains(attr, password) ||
			commonRatio(password, attr) > similarityThreshold
	})
}

// commonRatio is the longest common subsequence of a and b relative to the
// longer of the two.
func commonRatio(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		diag := 0
		for j := 1; j <= len(b); j++ {
			above := row[j]
			if a[i-1] == b[j-1] {
				row[j] = diag + 1
			} else {
				row[j] = max(row[j], row[j-1])
			}
			diag = above
		}
	}
	return float64(row[len(b)]) / float64(longest)
}
