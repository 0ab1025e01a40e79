// Package xliff parses and serializes XLIFF 1.2 documents via
// encoding/xml. Untouched files are never rewritten; dirty files are
// regenerated as a whole.
package xliff

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/model"
)

type document struct {
	XMLName xml.Name    `xml:"xliff"`
	Version string      `xml:"version,attr"`
	Xmlns   string      `xml:"xmlns,attr,omitempty"`
	Files   []*fileElem `xml:"file"`
}

type fileElem struct {
	Original       string       `xml:"original,attr"`
	SourceLanguage string       `xml:"source-language,attr"`
	TargetLanguage string       `xml:"target-language,attr,omitempty"`
	Datatype       string       `xml:"datatype,attr,omitempty"`
	Units          []*transUnit `xml:"body>trans-unit"`
}

type transUnit struct {
	ID     string  `xml:"id,attr"`
	Source string  `xml:"source"`
	Target *string `xml:"target"`
	Note   string  `xml:"note,omitempty"`
}

type file struct {
	path  string
	doc   *document
	units []*formats.Unit
	byKey map[string]*transUnit
	dirty bool
}

// Parse reads the XLIFF document at path. sourcePath is ignored: xliff
// is self-describing.
func Parse(path, sourcePath string, locale *model.Locale) (formats.ParsedResource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read xliff file %s: %w", path, err)
	}

	doc := &document{}
	if err := xml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse xliff file %s: %w", path, err)
	}

	f := &file{path: path, doc: doc, byKey: map[string]*transUnit{}}
	order := 0
	for _, fe := range doc.Files {
		for _, tu := range fe.Units {
			key := tu.ID
			if key == "" {
				key = tu.Source
			}
			unit := &formats.Unit{
				Key:          key,
				SourceString: tu.Source,
				Strings:      map[int]string{},
				Order:        order,
			}
			if tu.Note != "" {
				unit.Comments = []string{tu.Note}
			}
			if tu.Target != nil && *tu.Target != "" {
				unit.Strings[0] = *tu.Target
			}
			f.units = append(f.units, unit)
			f.byKey[key] = tu
			order++
		}
	}
	return f, nil
}

func (f *file) Units() []*formats.Unit {
	return f.units
}

func (f *file) UpdateFromDB(key string, strings map[int]string, fuzzy bool) error {
	tu, ok := f.byKey[key]
	if !ok {
		return fmt.Errorf("no xliff trans-unit with id %q in %s", key, f.path)
	}
	if target, ok := strings[0]; ok {
		tu.Target = &target
	} else {
		tu.Target = nil
	}
	f.dirty = true
	return nil
}

func (f *file) Save(locale *model.Locale) error {
	if !f.dirty {
		return nil
	}

	out, err := xml.MarshalIndent(f.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize xliff file %s: %w", f.path, err)
	}
	content := append([]byte(xml.Header), out...)
	content = append(content, '\n')
	return os.WriteFile(f.path, content, 0o644)
}
