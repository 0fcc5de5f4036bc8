package exchange

import (
	"fmt"
	"sort"
	"strings"

	"fundrouter/internal/core"
)

// aliases maps common misspellings and short forms onto canonical
// exchange names. Applied after alphanumeric normalization.
var aliases = map[string]string{
	"ascend":     "ascendex",
	"ascendx":    "ascendex",
	"bittrue":    "bitrue",
	"kucoincom":  "kucoin",
	"binancecom": "binance",
}

// NormalizeName lower-cases an exchange name, strips everything outside
// [a-z0-9], and applies the alias table. Resolution is done once per
// command.
func NormalizeName(name string) string {
	b := strings.Builder{}
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if canonical, ok := aliases[normalized]; ok {
		return canonical
	}
	return normalized
}

// Registry maps canonical exchange names to clients.
type Registry struct {
	clients map[string]Client
	secrets map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
		secrets: make(map[string]bool),
	}
}

// Register adds a client under its canonical name. hasSecrets records
// whether credentials are configured; operations that sign requests are
// refused up front for credential-less exchanges by the command layer.
func (r *Registry) Register(c Client, hasSecrets bool) {
	name := NormalizeName(c.Name())
	r.clients[name] = c
	r.secrets[name] = hasSecrets
}

func (r *Registry) Client(name string) (Client, error) {
	c, ok := r.clients[NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedExchange, name)
	}
	return c, nil
}

func (r *Registry) HasSecrets(name string) bool {
	return r.secrets[NormalizeName(name)]
}

// Names returns registered canonical names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
