package aggregate

import "strings"

// DefaultIcon is the bucket icon for category labels nothing below
// recognizes. Category labels are free text owned by the group, so an
// unseen label is an expected state, not an error.
const DefaultIcon = "tag"

var icons = map[string]string{
	"groceries":     "cart",
	"food":          "cart",
	"restaurants":   "utensils",
	"dining":        "utensils",
	"rent":          "home",
	"housing":       "home",
	"utilities":     "bolt",
	"transport":     "bus",
	"travel":        "plane",
	"health":        "heart",
	"entertainment": "film",
	"shopping":      "bag",
	"subscriptions": "repeat",
}

// IconFor maps a category label to its representative icon name,
// matching case-insensitively and falling back to DefaultIcon.
func IconFor(category string) string {
	if icon, ok := icons[strings.ToLower(strings.TrimSpace(category))]; ok {
		return icon
	}
	return DefaultIcon
}
