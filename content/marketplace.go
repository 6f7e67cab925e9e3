package content

// Marketplace is a distribution channel identifier. A node's marketplaces
// set is the list of channels where it ships.
type Marketplace string

const (
	MarketplaceXSOAR     Marketplace = "xsoar"
	MarketplaceXSOARSaaS Marketplace = "xsoar_saas"
	MarketplaceV2        Marketplace = "marketplacev2"
	MarketplaceXPANSE    Marketplace = "xpanse"
	MarketplacePlatform  Marketplace = "platform"
)

// AllMarketplaces lists every known marketplace in a stable order.
func AllMarketplaces() []Marketplace {
	return []Marketplace{
		MarketplaceXSOAR,
		MarketplaceXSOARSaaS,
		MarketplaceV2,
		MarketplaceXPANSE,
		MarketplacePlatform,
	}
}

// Valid reports whether m is a known marketplace.
func (m Marketplace) Valid() bool {
	for _, known := range AllMarketplaces() {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMarketplaces converts raw string values to marketplaces, dropping
// unknown entries. An empty input defaults to xsoar, matching the server's
// behavior for legacy content that predates the marketplaces field.
func ParseMarketplaces(raw []string) []Marketplace {
	if len(raw) == 0 {
		return []Marketplace{MarketplaceXSOAR}
	}
	var out []Marketplace
	for _, r := range raw {
		m := Marketplace(r)
		if m.Valid() {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return []Marketplace{MarketplaceXSOAR}
	}
	return out
}

// MarketplacesIntersect reports whether the two sets share at least one
// marketplace.
func MarketplacesIntersect(a, b []Marketplace) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// MarketplacesSubset reports whether every marketplace in a is also in b.
func MarketplacesSubset(a, b []Marketplace) bool {
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MarketplacesUnion returns the union of the two sets, preserving the order
// of first appearance.
func MarketplacesUnion(a, b []Marketplace) []Marketplace {
	seen := make(map[Marketplace]bool, len(a)+len(b))
	var out []Marketplace
	for _, m := range append(append([]Marketplace{}, a...), b...) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// MarketplacesContain reports whether the set contains m.
func MarketplacesContain(set []Marketplace, m Marketplace) bool {
	for _, x := range set {
		if x == m {
			return true
		}
	}
	return false
}
