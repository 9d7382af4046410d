package normalize

// DefaultAliases maps lowercased free-text marketplace variant names to
// canonical treatment strings. Marketplaces are inconsistent about variant
// naming ("foil", "Classic Foil", "CF" all mean the same print run), so the
// table is merged with operator-supplied aliases from configuration.
// Unresolvable names are passed through literally, never dropped, so they
// surface for alias-table maintenance.
var DefaultAliases = map[string]string{
	"foil":          "Foil",
	"classic foil":  "Foil",
	"cf":            "Foil",
	"holo":          "Holofoil",
	"holofoil":      "Holofoil",
	"reverse holo":  "Reverse Holofoil",
	"reverse":       "Reverse Holofoil",
	"rainbow":       "Rainbow Foil",
	"rainbow foil":  "Rainbow Foil",
	"gold":          "Gold Foil",
	"gold foil":     "Gold Foil",
	"non-foil":      "Base",
	"nonfoil":       "Base",
	"base":          "Base",
	"standard":      "Base",
	"1st edition":   "First Edition",
	"first edition": "First Edition",
	"shadowless":    "Shadowless",
}

// MergeAliases overlays operator-configured aliases on the default table.
// Parameters:
//   - overrides: configured alias map, may be nil.
// Returns:
//   - map[string]string: merged lowercased alias table.
func MergeAliases(overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(DefaultAliases)+len(overrides))
	for k, v := range DefaultAliases {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[normalizeAliasKey(k)] = v
	}
	return merged
}
