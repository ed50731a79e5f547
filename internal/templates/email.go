// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates

import "strings"

// EmailContent is the localized text of a notice.
type EmailContent struct {
	Greeting    string
	Body        string
	ActionLabel string
	ActionURL   string
	Signature   string
}

// bodyParagraphs splits the body on blank lines. The bare action URL is
// dropped since it is rendered as a button.
func bodyParagraphs(content EmailContent) [][]string {
	var out [][]string
	for _, p := range strings.Split(content.Body, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" || p == content.ActionURL {
			continue
		}
		out = append(out, lines(p))
	}
	return out
}

func lines(text string) []string {
	return strings.Split(text, "\n")
}
