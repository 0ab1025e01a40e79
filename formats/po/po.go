// Package po parses and serializes gettext catalogs (.po and .pot).
package po

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/model"
)

// entry is one catalog message. Raw lines are kept so untouched entries
// serialize exactly as they were read.
type entry struct {
	commentLines []string
	msgidLines   []string
	msgstrLines  []string

	msgctxt     string
	msgid       string
	msgidPlural string
	msgstrs     map[int]string

	fuzzy bool
	dirty bool

	unit *formats.Unit
}

type catalog struct {
	path     string
	original []byte
	header   *entry
	entries  []*entry
	units    []*formats.Unit
	dirty    bool
}

// Parse reads the catalog at path. sourcePath is ignored: po is a
// symmetric format.
func Parse(path, sourcePath string, locale *model.Locale) (formats.ParsedResource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read po file %s: %w", path, err)
	}

	cat := &catalog{path: path, original: data}
	if err := cat.parse(string(data)); err != nil {
		return nil, fmt.Errorf("parse po file %s: %w", path, err)
	}
	cat.buildUnits()
	return cat, nil
}

func (c *catalog) parse(content string) error {
	lines := strings.Split(content, "\n")

	var current *entry
	var lastKeyword string
	var lastPluralIndex int

	flush := func() {
		if current == nil {
			return
		}
		if current.msgid == "" && current.msgctxt == "" && c.header == nil && len(c.entries) == 0 {
			c.header = current
		} else {
			c.entries = append(c.entries, current)
		}
		current = nil
		lastKeyword = ""
	}

	ensure := func() *entry {
		if current == nil {
			current = &entry{msgstrs: map[int]string{}}
		}
		return current
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()

		case strings.HasPrefix(trimmed, "#"):
			e := ensure()
			e.commentLines = append(e.commentLines, line)
			if strings.HasPrefix(trimmed, "#,") && strings.Contains(trimmed, "fuzzy") {
				e.fuzzy = true
			}

		case strings.HasPrefix(trimmed, "msgctxt "):
			e := ensure()
			e.msgidLines = append(e.msgidLines, line)
			e.msgctxt = decodePOString(strings.TrimPrefix(trimmed, "msgctxt "))
			lastKeyword = "msgctxt"

		case strings.HasPrefix(trimmed, "msgid_plural "):
			e := ensure()
			e.msgidLines = append(e.msgidLines, line)
			e.msgidPlural = decodePOString(strings.TrimPrefix(trimmed, "msgid_plural "))
			lastKeyword = "msgid_plural"

		case strings.HasPrefix(trimmed, "msgid "):
			e := ensure()
			e.msgidLines = append(e.msgidLines, line)
			e.msgid = decodePOString(strings.TrimPrefix(trimmed, "msgid "))
			lastKeyword = "msgid"

		case strings.HasPrefix(trimmed, "msgstr["):
			e := ensure()
			end := strings.Index(trimmed, "]")
			if end < 0 {
				return fmt.Errorf("malformed plural msgstr line %q", trimmed)
			}
			idx, err := strconv.Atoi(trimmed[len("msgstr["):end])
			if err != nil {
				return fmt.Errorf("malformed plural index in %q", trimmed)
			}
			e.msgstrs[idx] = decodePOString(strings.TrimSpace(trimmed[end+1:]))
			e.msgstrLines = append(e.msgstrLines, line)
			lastKeyword = "msgstr"
			lastPluralIndex = idx

		case strings.HasPrefix(trimmed, "msgstr "):
			e := ensure()
			e.msgstrs[0] = decodePOString(strings.TrimPrefix(trimmed, "msgstr "))
			e.msgstrLines = append(e.msgstrLines, line)
			lastKeyword = "msgstr"
			lastPluralIndex = 0

		case strings.HasPrefix(trimmed, `"`):
			e := ensure()
			part := decodePOString(trimmed)
			switch lastKeyword {
			case "msgctxt":
				e.msgctxt += part
				e.msgidLines = append(e.msgidLines, line)
			case "msgid":
				e.msgid += part
				e.msgidLines = append(e.msgidLines, line)
			case "msgid_plural":
				e.msgidPlural += part
				e.msgidLines = append(e.msgidLines, line)
			case "msgstr":
				e.msgstrs[lastPluralIndex] += part
				e.msgstrLines = append(e.msgstrLines, line)
			default:
				return fmt.Errorf("unexpected continuation line %q", trimmed)
			}

		default:
			return fmt.Errorf("unrecognized po line %q", trimmed)
		}
	}
	flush()
	return nil
}

func (c *catalog) buildUnits() {
	for i, e := range c.entries {
		unit := &formats.Unit{
			Key:          entryKey(e.msgctxt, e.msgid),
			Context:      e.msgctxt,
			SourceString: e.msgid,
			SourcePlural: e.msgidPlural,
			Strings:      map[int]string{},
			Fuzzy:        e.fuzzy,
			Order:        i,
		}
		for idx, s := range e.msgstrs {
			if s != "" {
				unit.Strings[idx] = s
			}
		}
		for _, line := range e.commentLines {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "#."):
				unit.Comments = append(unit.Comments, strings.TrimSpace(trimmed[2:]))
			case strings.HasPrefix(trimmed, "#:"):
				unit.Source = append(unit.Source, strings.Fields(trimmed[2:])...)
			}
		}
		e.unit = unit
		c.units = append(c.units, unit)
	}
}

func (c *catalog) Units() []*formats.Unit {
	return c.units
}

func (c *catalog) UpdateFromDB(key string, strings map[int]string, fuzzy bool) error {
	for _, e := range c.entries {
		if entryKey(e.msgctxt, e.msgid) != key {
			continue
		}
		e.msgstrs = map[int]string{}
		for idx, s := range strings {
			e.msgstrs[idx] = s
		}
		e.fuzzy = fuzzy
		e.dirty = true
		c.dirty = true
		if e.unit != nil {
			e.unit.Strings = strings
			e.unit.Fuzzy = fuzzy
		}
		return nil
	}
	return fmt.Errorf("no po entry with key %q in %s", key, c.path)
}

func (c *catalog) Save(locale *model.Locale) error {
	if !c.dirty {
		return nil
	}

	var b strings.Builder
	if c.header != nil {
		writeEntry(&b, c.header, 0)
		b.WriteString("\n")
	}
	for i, e := range c.entries {
		nplurals := 1
		if e.msgidPlural != "" && locale != nil {
			nplurals = locale.NPlurals()
		}
		writeEntry(&b, e, nplurals)
		if i < len(c.entries)-1 {
			b.WriteString("\n")
		}
	}

	return os.WriteFile(c.path, []byte(b.String()), 0o644)
}

func writeEntry(b *strings.Builder, e *entry, nplurals int) {
	if !e.dirty {
		// untouched entries round-trip verbatim, multi-line
		// continuations included
		for _, line := range e.commentLines {
			b.WriteString(line + "\n")
		}
		for _, line := range e.msgidLines {
			b.WriteString(line + "\n")
		}
		for _, line := range e.msgstrLines {
			b.WriteString(line + "\n")
		}
		return
	}

	for _, line := range e.commentLines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#,") {
			flags := rebuildFlags(trimmed, e.fuzzy)
			if flags != "" {
				b.WriteString(flags + "\n")
			}
			continue
		}
		b.WriteString(line + "\n")
	}
	if e.fuzzy && !hasFlagsLine(e.commentLines) {
		b.WriteString("#, fuzzy\n")
	}

	for _, line := range e.msgidLines {
		b.WriteString(line + "\n")
	}

	if e.msgidPlural != "" {
		for i := 0; i < nplurals; i++ {
			b.WriteString("msgstr[" + strconv.Itoa(i) + "] " + encodePOString(e.msgstrs[i]) + "\n")
		}
		// Keep any extra stored forms beyond nplurals.
		var extra []int
		for idx := range e.msgstrs {
			if idx >= nplurals {
				extra = append(extra, idx)
			}
		}
		sort.Ints(extra)
		for _, idx := range extra {
			b.WriteString("msgstr[" + strconv.Itoa(idx) + "] " + encodePOString(e.msgstrs[idx]) + "\n")
		}
	} else {
		b.WriteString("msgstr " + encodePOString(e.msgstrs[0]) + "\n")
	}
}

func hasFlagsLine(commentLines []string) bool {
	for _, line := range commentLines {
		if strings.HasPrefix(strings.TrimSpace(line), "#,") {
			return true
		}
	}
	return false
}

// rebuildFlags keeps non-fuzzy flags as they were and adds or removes
// the fuzzy flag to match the entry. Returns "" when no flags remain.
func rebuildFlags(line string, fuzzy bool) string {
	raw := strings.TrimPrefix(strings.TrimSpace(line), "#,")
	var flags []string
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if f != "" && f != "fuzzy" {
			flags = append(flags, f)
		}
	}
	if fuzzy {
		flags = append([]string{"fuzzy"}, flags...)
	}
	if len(flags) == 0 {
		return ""
	}
	return "#, " + strings.Join(flags, ", ")
}

func entryKey(msgctxt, msgid string) string {
	if msgctxt == "" {
		return msgid
	}
	return msgctxt + model.KeySeparator + msgid
}

func decodePOString(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, `"`)
	raw = strings.TrimSuffix(raw, `"`)

	var b strings.Builder
	escaped := false
	for _, r := range raw {
		if escaped {
			switch r {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '"':
				b.WriteRune('"')
			case '\\':
				b.WriteRune('\\')
			default:
				b.WriteRune('\\')
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

func encodePOString(s string) string {
	var b strings.Builder
	b.WriteString(`"`)
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString(`"`)
	return b.String()
}
