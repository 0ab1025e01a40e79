// Package lang parses and serializes Mozilla .lang files: a source line
// prefixed with ";" followed by its translation on the next line. A
// translation identical to its source carries the {ok} tag to
// distinguish it from an untranslated string.
package lang

import (
	"fmt"
	"os"
	"strings"

	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/model"
)

const okTag = "{ok}"

type entry struct {
	comments []string
	source   string
	target   string
	hasOK    bool
}

type file struct {
	path     string
	original []byte
	entries  []*entry
	units    []*formats.Unit
	byKey    map[string]*entry
	dirty    bool
}

func Parse(path, sourcePath string, locale *model.Locale) (formats.ParsedResource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lang file %s: %w", path, err)
	}

	f := &file{path: path, original: data, byKey: map[string]*entry{}}

	var comments []string
	lines := strings.Split(string(data), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			comments = nil
		case strings.HasPrefix(line, "#"):
			comments = append(comments, strings.TrimSpace(strings.TrimLeft(line, "#")))
		case strings.HasPrefix(line, ";"):
			e := &entry{comments: comments, source: strings.TrimSpace(line[1:])}
			comments = nil
			if i+1 < len(lines) {
				i++
				target := strings.TrimSpace(lines[i])
				if strings.HasSuffix(target, okTag) {
					e.hasOK = true
					target = strings.TrimSpace(strings.TrimSuffix(target, okTag))
				}
				e.target = target
			}
			f.entries = append(f.entries, e)
			f.byKey[e.source] = e
		}
	}

	for i, e := range f.entries {
		unit := &formats.Unit{
			Key:          e.source,
			SourceString: e.source,
			Strings:      map[int]string{},
			Comments:     e.comments,
			Order:        i,
		}
		// A target equal to its source without {ok} is untranslated.
		if e.target != "" && (e.target != e.source || e.hasOK) {
			unit.Strings[0] = e.target
		}
		f.units = append(f.units, unit)
	}
	return f, nil
}

func (f *file) Units() []*formats.Unit {
	return f.units
}

func (f *file) UpdateFromDB(key string, strings map[int]string, fuzzy bool) error {
	e, ok := f.byKey[key]
	if !ok {
		return fmt.Errorf("no lang entry with source %q in %s", key, f.path)
	}
	target := strings[0]
	e.target = target
	e.hasOK = target != "" && target == e.source
	f.dirty = true
	return nil
}

func (f *file) Save(locale *model.Locale) error {
	if !f.dirty {
		return nil
	}

	var b strings.Builder
	for i, e := range f.entries {
		for _, c := range e.comments {
			b.WriteString("# " + c + "\n")
		}
		b.WriteString(";" + e.source + "\n")
		target := e.target
		if target == "" {
			target = e.source
		} else if e.hasOK {
			target += " " + okTag
		}
		b.WriteString(target + "\n")
		if i < len(f.entries)-1 {
			b.WriteString("\n")
		}
	}
	return os.WriteFile(f.path, []byte(b.String()), 0o644)
}
