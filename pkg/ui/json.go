package ui

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/pretty"
)

// JSON prints v as indented JSON, colorized unless NoColor is set
func (p *Printer) JSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	out := pretty.Pretty(data)
	if !p.NoColor {
		out = pretty.Color(out, nil)
	}
	_, err = p.Out.Write(out)
	return err
}
