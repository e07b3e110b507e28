package common

import (
	"encoding/json"
	"io"
)

// JsonPrinter writes one JSON document per line. The first error is kept
// and all later prints are no-ops.
type JsonPrinter struct {
	W        io.Writer
	Indent   bool
	AccError error
	Count    int
}

func (p *JsonPrinter) Print(data any, show bool) {
	if !show || p.AccError != nil {
		return
	}
	enc := json.NewEncoder(p.W)
	enc.SetEscapeHTML(false)
	if p.Indent {
		enc.SetIndent("", "  ")
	}
	if p.AccError = enc.Encode(data); p.AccError == nil {
		p.Count++
	}
}

func (p *JsonPrinter) Error() error {
	return p.AccError
}
