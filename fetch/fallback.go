package fetch

import (
	"fmt"
	"html"
)

// FallbackClass is the CSS class of the synthesized fallback artifact.
const FallbackClass = "fragment-fallback"

// Fallback synthesizes the placeholder returned for resource in non-strict
// mode once every candidate failed.
func Fallback(resource string) string {
	r := html.EscapeString(resource)
	return fmt.Sprintf(`<div class="%s" data-resource="%s"><h2>%s</h2><p>This content is not available right now.</p></div>`, FallbackClass, r, r)
}
