// Copyright (C) 2025-2026 Cliprally, Inc.
// This file is part of cliprally
//
// cliprally is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// cliprally is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with cliprally.  If not, see <https://www.gnu.org/licenses/>.

// Package codecs holds the JSON helpers used for on-disk configuration
// files.
package codecs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// NewFormattedJSONEncoder returns a json encoder configured for
// pretty-printed, human-editable output.
func NewFormattedJSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	enc.SetEscapeHTML(false)
	return enc
}

// LoadObjectFromFile decodes a json file into object.
func LoadObjectFromFile(filename string, object interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(object)
}

// SaveObjectToFile writes object to a file as json.
func SaveObjectToFile(filename string, object interface{}, prettyFormat bool) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if prettyFormat {
		enc = NewFormattedJSONEncoder(f)
	}
	return enc.Encode(object)
}

// SaveNonDefaultValuesToFile writes object to a file as json, keeping only
// the fields whose values differ from defaultObject. Fields named in
// alwaysInclude are written even when they match the default. The written
// file stays small and readable: it records only what the operator changed.
func SaveNonDefaultValuesToFile(filename string, object, defaultObject interface{}, alwaysInclude []string) error {
	values, err := toValueMap(object)
	if err != nil {
		return err
	}
	defaults, err := toValueMap(defaultObject)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(alwaysInclude))
	for _, name := range alwaysInclude {
		keep[name] = true
	}

	for name, value := range values {
		if keep[name] {
			continue
		}
		def, ok := defaults[name]
		if ok && jsonEqual(value, def) {
			delete(values, name)
		}
	}

	return SaveObjectToFile(filename, values, true)
}

// toValueMap round-trips object through json so field names and value
// representations match what the decoder will see on load.
func toValueMap(object interface{}) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(object)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("expected a flat json object: %w", err)
	}
	return m, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	return string(a) == string(b)
}
