// Package properties parses and serializes .properties files. The
// format is asymmetric: the target-locale file alone does not enumerate
// all translatable keys, so parsing requires the paired source file.
package properties

import (
	"fmt"
	"os"
	"strings"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/model"
)

type file struct {
	path     string
	original []byte
	units    []*formats.Unit
	byKey    map[string]*formats.Unit
	dirty    bool
}

// Parse reads the source file at sourcePath to enumerate keys and
// overlays translations found at path. path may not exist yet for
// locales without any translations.
func Parse(path, sourcePath string, locale *model.Locale) (formats.ParsedResource, error) {
	if sourcePath == "" {
		return nil, faults.Configuration("properties files need a source file: " + path)
	}

	sourceData, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read properties source %s: %w", sourcePath, err)
	}
	source, err := parseEntries(string(sourceData))
	if err != nil {
		return nil, fmt.Errorf("parse properties source %s: %w", sourcePath, err)
	}

	f := &file{path: path, byKey: map[string]*formats.Unit{}}

	translations := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		f.original = data
		target, err := parseEntries(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse properties file %s: %w", path, err)
		}
		for _, e := range target {
			translations[e.key] = e.value
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read properties file %s: %w", path, err)
	}

	for i, e := range source {
		unit := &formats.Unit{
			Key:          e.key,
			SourceString: e.value,
			Strings:      map[int]string{},
			Comments:     e.comments,
			Order:        i,
		}
		if t, ok := translations[e.key]; ok {
			unit.Strings[0] = t
		}
		f.units = append(f.units, unit)
		f.byKey[e.key] = unit
	}
	return f, nil
}

type rawEntry struct {
	key      string
	value    string
	comments []string
}

func parseEntries(content string) ([]rawEntry, error) {
	var entries []rawEntry
	var comments []string

	lines := strings.Split(content, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			comments = nil
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			comments = append(comments, strings.TrimSpace(line[1:]))
			continue
		}

		// Logical lines continue while they end with a backslash.
		for strings.HasSuffix(line, "\\") && i+1 < len(lines) {
			line = strings.TrimSuffix(line, "\\")
			i++
			line += strings.TrimSpace(lines[i])
		}

		sep := separatorIndex(line)
		if sep < 0 {
			return nil, fmt.Errorf("malformed properties line %q", line)
		}
		entries = append(entries, rawEntry{
			key:      unescape(strings.TrimSpace(line[:sep])),
			value:    unescape(strings.TrimSpace(line[sep+1:])),
			comments: comments,
		})
		comments = nil
	}
	return entries, nil
}

func separatorIndex(line string) int {
	escaped := false
	for i, r := range line {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '=', ':':
			return i
		}
	}
	return -1
}

func (f *file) Units() []*formats.Unit {
	return f.units
}

func (f *file) UpdateFromDB(key string, strings map[int]string, fuzzy bool) error {
	unit, ok := f.byKey[key]
	if !ok {
		return fmt.Errorf("no properties entry with key %q in %s", key, f.path)
	}
	unit.Strings = strings
	f.dirty = true
	return nil
}

// Save writes only translated units, in source order. Untranslated keys
// are omitted so compare-locales style tooling can detect them as
// missing rather than empty.
func (f *file) Save(locale *model.Locale) error {
	if !f.dirty {
		return nil
	}

	var b strings.Builder
	for _, unit := range f.units {
		value, ok := unit.Strings[0]
		if !ok {
			continue
		}
		b.WriteString(escapeKey(unit.Key) + "=" + escapeValue(value) + "\n")
	}
	return os.WriteFile(f.path, []byte(b.String()), 0o644)
}

func unescape(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			switch r {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeKey(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "=", `\=`, ":", `\:`, " ", `\ `)
	return r.Replace(s)
}

func escapeValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`)
	return r.Replace(s)
}
