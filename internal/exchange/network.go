package exchange

import "strings"

// networkRules maps provider-side network labels onto canonical tokens.
// Rule order is fixed so normalization is deterministic. Labels are
// split on parentheses before matching, so "TRON(TRC20)" matches both
// the TRON alias and the TRC20 alias and lands on the same token.
var networkRules = []struct {
	token   string
	aliases []string
}{
	{"TRC20", []string{"TRC20", "TRON", "TRX"}},
	{"ERC20", []string{"ERC20", "ETH", "ETHEREUM"}},
	{"BSC", []string{"BSC", "BEP20", "BNB SMART CHAIN", "BINANCE SMART CHAIN", "BNB"}},
	{"ARBITRUM", []string{"ARBITRUM", "ARBITRUM ONE", "ARB"}},
	{"OPTIMISM", []string{"OPTIMISM", "OP"}},
	{"MATIC", []string{"MATIC", "POLYGON", "POLYGON POS"}},
	{"SOL", []string{"SOL", "SOLANA"}},
	{"AVAXC", []string{"AVAXC", "AVAX C-CHAIN", "AVALANCHE", "CCHAIN", "C-CHAIN", "AVAX"}},
	{"BASE", []string{"BASE"}},
}

// CanonicalNetwork maps an exchange-specific network label to its
// canonical token. Unknown labels are reduced to their upper-case
// alphanumeric form so they still compare consistently.
func CanonicalNetwork(label string) string {
	parts := splitLabel(label)
	for _, rule := range networkRules {
		for _, part := range parts {
			for _, alias := range rule.aliases {
				if part == alias {
					return rule.token
				}
			}
		}
	}
	return sanitizeNetwork(label)
}

// SameNetwork reports whether two network labels refer to the same chain.
// Matching is always done on canonical tokens, never literal strings.
func SameNetwork(a, b string) bool {
	return CanonicalNetwork(a) == CanonicalNetwork(b)
}

// CanonicalNetworks maps and deduplicates a label list, keeping first
// occurrence order.
func CanonicalNetworks(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		token := CanonicalNetwork(label)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}

// memoNetworks are chains whose deposits are routed by a memo/tag; a
// withdrawal to them without a memo is refused before the remote call.
var memoNetworks = map[string]bool{
	"XRP":  true,
	"XLM":  true,
	"EOS":  true,
	"ATOM": true,
	"TON":  true,
	"HBAR": true,
	"BEP2": true,
}

// MemoRequired reports whether the network's canonical token requires a
// destination memo/tag.
func MemoRequired(network string) bool {
	return memoNetworks[CanonicalNetwork(network)]
}

func splitLabel(label string) []string {
	u := strings.ToUpper(strings.TrimSpace(label))
	u = strings.ReplaceAll(u, ")", "(")
	raw := strings.Split(u, "(")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func sanitizeNetwork(label string) string {
	b := strings.Builder{}
	for _, r := range strings.ToUpper(strings.TrimSpace(label)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
