// Package aggregate derives volume and category time series from the
// snapshot store.
package aggregate

import (
	"strings"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// rule assigns a category to tickers whose series (the part before the
// first "-") starts with one of prefixes, or whose full ticker contains one
// of keywords. Matching is case-insensitive.
type rule struct {
	category domain.Category
	prefixes []string
	keywords []string
}

// rules is evaluated top to bottom; the first match wins. Sports and crypto
// are matched before the keyword-only politics rule, so short keywords like
// "GOV" or "VP" only claim what no earlier rule did.
var rules = []rule{
	{category: domain.CategoryNFL, prefixes: []string{"KXNFL", "KXSB", "KXMVENFL"}},
	{category: domain.CategoryNCAAFootball, prefixes: []string{"KXNCAAF", "KXCFB", "KXCOLLFB"}},
	{category: domain.CategoryMLB, prefixes: []string{"KXMLB", "KXBASEBALL"}},
	{category: domain.CategoryNBA, prefixes: []string{"KXNBA", "KXWNBA", "KXNCAAMB"}},
	{category: domain.CategoryNHL, prefixes: []string{"KXNHL", "KXHOCKEY"}},
	{
		category: domain.CategorySoccer,
		prefixes: []string{
			"KXEPL", "KXUCL", "KXLALIGA", "KXSERIA", "KXBUNDES", "KXUEL",
			"KXCARABAO", "KXFA", "KXPREMIERLEAGUE", "KXMLS", "KXSOC",
			"KXCHAMPIONS", "KXUSLC", "KXSERIB", "KXCOPA", "KXSAUDI",
		},
		keywords: []string{"SOCC", "LIGA", "SERIE", "UEFA", "CHAMPIONS", "PREMIER", "MLS", "FA CUP"},
	},
	{
		category: domain.CategoryTennis,
		prefixes: []string{"KXATP", "KXWTA", "KXUSO", "KXAUS", "KXROL", "KXWIM", "KXTENNIS", "KXUSOMEN", "KXUSOWOMEN"},
		keywords: []string{"TENNIS", "ROLAND GARROS", "WIMBLEDON"},
	},
	{
		category: domain.CategoryCrypto,
		prefixes: []string{"KXBTC", "KXETH", "KXSOL", "KXCRYPTO", "KXETHD", "KXETHM", "KXETHF", "KXBTCM", "KXETHMAX"},
		keywords: []string{"CRYPTO", "BITCOIN", "ETHEREUM", "SOLANA"},
	},
	{
		category: domain.CategoryPolitics,
		keywords: []string{
			"ELECTION", "SENATE", "HOUSE", "MAYOR", "GOV", "TRUMP", "BIDEN",
			"PRIMARY", "PRES", "CONGRESS", "BALLOT", "GOP", "DEM", "RUNOFF", "VP",
		},
	},
}

// Classify maps a market ticker onto the fixed category set. It is total:
// every input, including the empty string, yields exactly one category,
// with domain.CategoryOther as the catch-all.
func Classify(ticker string) domain.Category {
	upper := strings.ToUpper(ticker)
	series, _, _ := strings.Cut(upper, "-")

	for _, r := range rules {
		for _, p := range r.prefixes {
			if strings.HasPrefix(series, p) {
				return r.category
			}
		}
		for _, k := range r.keywords {
			if strings.Contains(upper, k) {
				return r.category
			}
		}
	}
	return domain.CategoryOther
}

// CategoryNames lists every category Classify can return, in rule order with
// Other last.
func CategoryNames() []domain.Category {
	out := make([]domain.Category, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.category)
	}
	return append(out, domain.CategoryOther)
}
