package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// Render substitutes {name} placeholders. Unknown names stay verbatim.
func Render(tpl string, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok || v == nil {
			return m
		}
		return fmt.Sprint(v)
	})
}

// decodePayload keeps numbers as json.Number so amounts render exactly.
func decodePayload(b []byte) (map[string]any, error) {
	vars := map[string]any{}
	if len(b) == 0 {
		return vars, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&vars); err != nil {
		return nil, err
	}
	return vars, nil
}
