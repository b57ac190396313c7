package classify

// excludedLabels are detector false positives that are never waste: the
// user's hand holding the item and artifacts of photographing a screen.
var excludedLabels = map[string]struct{}{
	"finger":      {},
	"fingernail":  {},
	"hand":        {},
	"skin":        {},
	"technology":  {},
	"photograph":  {},
	"picture":     {},
	"image":       {},
	"photo":       {},
	"display":     {},
	"screen":      {},
	"snapshot":    {},
	"photography": {},
	"text":        {},
	"font":        {},
	"line":        {},
	"symbol":      {},
}

// IsExcluded reports whether label is a known non-waste detector artifact.
func IsExcluded(label string) bool {
	_, ok := excludedLabels[NormalizeItem(label)]
	return ok
}
