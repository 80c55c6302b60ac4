// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// linkedData is the subset of a schema.org JSON-LD object the extractor reads.
type linkedData struct {
	DatePublished Field[string] `json:"datePublished"`
	DateCreated   Field[string] `json:"dateCreated"`
	Author        authorField   `json:"author"`
}

// authorField decodes the author property, which publishers write as a
// Person object, a list of objects or names, or a plain name.
type authorField struct {
	Field[string]
}

func (a *authorField) UnmarshalJSON(b []byte) error {
	a.Field = Absent[string]()

	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case string:
		a.Field = nonBlank(v)
	case map[string]any:
		a.Field = nameOf(v)
	case []any:
		for _, item := range v {
			switch it := item.(type) {
			case map[string]any:
				if f := nameOf(it); f.ok {
					a.Field = f
					return nil
				}
			case string:
				if f := nonBlank(it); f.ok {
					a.Field = f
					return nil
				}
			}
		}
	}
	return nil
}

// nameOf reads the name property of a decoded object, stringifying non-string names.
func nameOf(obj map[string]any) Field[string] {
	name, ok := obj["name"]
	if !ok || name == nil {
		return Absent[string]()
	}
	if s, ok := name.(string); ok {
		return nonBlank(s)
	}
	b, err := json.Marshal(name)
	if err != nil {
		return Absent[string]()
	}
	return nonBlank(string(b))
}

func nonBlank(s string) Field[string] {
	if s = strings.TrimSpace(s); s != "" {
		return Present(s)
	}
	return Absent[string]()
}

// linkedDataObjects decodes every JSON-LD script of the page. A script may
// hold one object or an array of them; non-object entries and scripts that
// are not valid JSON are skipped.
func linkedDataObjects(doc *goquery.Document) []linkedData {
	var out []linkedData
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		var raw json.RawMessage
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			items = []json.RawMessage{raw}
		}
		for _, item := range items {
			if !isObject(item) {
				continue
			}
			var ld linkedData
			if err := json.Unmarshal(item, &ld); err == nil {
				out = append(out, ld)
			}
		}
	})
	return out
}

func isObject(b json.RawMessage) bool {
	s := strings.TrimSpace(string(b))
	return strings.HasPrefix(s, "{")
}
