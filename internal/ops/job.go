// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ops

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decodes an operator tree from a job description in JSON or YAML format.
// YAML documents are converted to JSON first, so both share one decoder
func UnmarshalJob(data []byte, format string) (Operator, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json", "":
		return UnmarshalOperator(data)
	case "yaml", "yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		js, err := json.Marshal(jsonCompatible(doc))
		if err != nil {
			return nil, err
		}
		return UnmarshalOperator(js)
	}
	return nil, fmt.Errorf("unknown job format '%s'", format)
}

// Job format from a file name suffix
func JobFormat(fileName string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
}

// Converts maps with non-string keys, as produced for some YAML documents,
// into maps with string keys
func jsonCompatible(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = jsonCompatible(e)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = jsonCompatible(e)
		}
		return m
	case []interface{}:
		for i, e := range t {
			t[i] = jsonCompatible(e)
		}
		return t
	}
	return v
}
