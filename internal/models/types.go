package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ID tolerates the backend emitting identifiers as either JSON numbers or
// strings; the PHP layer is not consistent about it.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == "" || id == "0"
}

func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Cycles tolerates numeric or quoted-numeric cycle counts.
type Cycles float64

func (c Cycles) Float64() float64 {
	return float64(c)
}

func (c *Cycles) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*c = Cycles(v)
	return nil
}
