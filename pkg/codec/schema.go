/*
Copyright 2025 The Strife.ML Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package codec

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Type tags recorded in a Schema.
const (
	TypeBool     = "bool"
	TypeUint8    = "uint8"
	TypeInt32    = "int32"
	TypeUint32   = "uint32"
	TypeInt64    = "int64"
	TypeFloat32  = "float32"
	TypeFloat64  = "float64"
	TypeString   = "string"
	TypeBytes    = "bytes"
	TypeFloat64s = "float64[]"
	TypeEnum     = "enum"
)

// Property locates one named field inside a serialized object.
type Property struct {
	Type   string `yaml:"type" json:"type"`
	Offset int    `yaml:"offset" json:"offset"`
}

// Schema maps field names to their type and byte offset. It is filled by a
// write-mode Serializer and consumed by tooling that inspects raw samples.
type Schema struct {
	Properties map[string]Property `yaml:"properties" json:"properties"`
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{Properties: make(map[string]Property)}
}

func (s *Schema) add(name, typ string, offset int) {
	s.Properties[name] = Property{Type: typ, Offset: offset}
}

// Lookup returns the property registered under name.
func (s *Schema) Lookup(name string) (Property, bool) {
	p, ok := s.Properties[name]
	return p, ok
}

// Names returns the registered field names ordered by offset.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := s.Properties[names[i]], s.Properties[names[j]]
		if pi.Offset != pj.Offset {
			return pi.Offset < pj.Offset
		}
		return names[i] < names[j]
	})
	return names
}

// Encode writes the schema as YAML.
func (s *Schema) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return enc.Close()
}

// DecodeSchema reads a schema written by Encode.
func DecodeSchema(r io.Reader) (*Schema, error) {
	s := NewSchema()
	if err := yaml.NewDecoder(r).Decode(s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if s.Properties == nil {
		s.Properties = make(map[string]Property)
	}
	return s, nil
}

// Describe serializes the given values in order and returns the schema of
// the named fields they register.
func Describe(values ...Serializable) *Schema {
	schema := NewSchema()
	w := NewWriter(schema)
	for _, v := range values {
		v.Serialize(w)
	}
	return schema
}
