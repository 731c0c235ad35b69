package loader

import (
	"fmt"
	"html"
)

// ErrorPanel renders the panel shown in a target after a terminal strict
// failure: the message, a retry action and an action going to the default
// resource.
func ErrorPanel(resource, defaultResource string, err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r := html.EscapeString(resource)
	return fmt.Sprintf(`<div class="fragment-error" data-resource="%s">
  <h2>Failed to load %s</h2>
  <p class="fragment-error-message">%s</p>
  <button type="button" data-action="retry" data-resource="%s">Retry</button>
  <button type="button" data-action="default" data-resource="%s">Go to %s</button>
</div>`, r, r, html.EscapeString(msg), r, html.EscapeString(defaultResource), html.EscapeString(defaultResource))
}
