package smartlead

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// listOrData accepts either a bare JSON array or an object wrapping it in "data".
type listOrData[T any] []T

func (l *listOrData[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	if b[0] != '{' {
		return eris.Errorf("smartlead: unexpected payload starting with %q", b[0])
	}

	var wrapped struct {
		Data *[]T `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	if wrapped.Data == nil {
		return eris.New("smartlead: object payload without data")
	}
	*l = *wrapped.Data
	return nil
}

// flexInt decodes a number that may arrive as a JSON string, number, or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return eris.Wrapf(err, "smartlead: parse count %q", b)
	}
	*f = flexInt(n)
	return nil
}
