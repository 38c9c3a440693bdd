// Package rule holds the merchant-name keying used by learned classification rules.
package rule

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// corporateTokens are entity-type markers dropped from store names.
// Matching runs after NFKC, so ㈱ and （株） have already become (株).
var corporateTokens = []string{
	"株式会社",
	"有限会社",
	"合同会社",
	"合資会社",
	"合名会社",
	"(株)",
	"(有)",
	"(同)",
	"(資)",
	"(名)",
}

// NormalizeStoreName turns a raw store name into the lookup key for rules.
// The result is stable under repeated application.
func NormalizeStoreName(name string) string {
	s := norm.NFKC.String(name)
	s = width.Fold.String(s)

	for _, tok := range corporateTokens {
		s = strings.ReplaceAll(s, tok, " ")
	}

	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}
