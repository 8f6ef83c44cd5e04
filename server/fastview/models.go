// fastview pushes idempotent element updates to a web page over a websocket:
// a view converts its model into EleUpdates, and the page applies them by element id.
package fastview

import (
	"html/template"
)

// EleUpdate addresses one page element and the operations to apply to it.
type EleUpdate struct {
	EleId string
	// Applied in order. Each Op sets an attribute, or the text for the TextContent key.
	Ops []Op
}

// Op sets Key to Value, e.g. ("width", "120.0").
type Op struct {
	Key   string
	Value string
}

// TextContent is the reserved Op key for replacing an element's text.
const TextContent = "textContent"

// SetText returns an update replacing the text of element id.
func SetText(id, text string) EleUpdate {
	return EleUpdate{
		EleId: id,
		Ops:   []Op{{Key: TextContent, Value: text}},
	}
}

// ViewComponent is a server side view.
type ViewComponent interface {
	// Updates is the chan of ele-updates, one slice per model change.
	Updates() <-chan []EleUpdate
	// Parse defines the view's initial markup in the passed template, inheriting its
	// func-map, and returns the name it was defined under.
	Parse(*template.Template) (string, error)
}
