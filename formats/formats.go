// Package formats defines the adapter contract every resource file
// format implements, and the registry the sync engine dispatches
// through.
package formats

import (
	"path"
	"strings"
	"sync"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

// Unit is one translatable unit parsed from a resource file. Key must be
// derivable deterministically from file content so re-parsing the same
// logical entity yields the same key. Strings maps plural-form index to
// translation; form 0 is always present for translated units.
type Unit struct {
	Key          string
	Context      string
	SourceString string
	SourcePlural string
	Strings      map[int]string
	Comments     []string
	Source       []string
	Fuzzy        bool
	Order        int

	// Extra carries format-specific round-trip data the database does
	// not model but that must survive a pull/push cycle.
	Extra map[string]any
}

func (u *Unit) HasTranslation() bool {
	return len(u.Strings) > 0
}

// ParsedResource is the in-memory representation of one resource file.
// Implementations must be lossless for non-translatable structure: with
// no UpdateFromDB calls, Save must reproduce the input byte for byte.
type ParsedResource interface {
	Units() []*Unit

	// UpdateFromDB replaces the translations of the unit identified by
	// key with the approved database strings and marks the resource
	// dirty. The VCS-write direction.
	UpdateFromDB(key string, strings map[int]string, fuzzy bool) error

	// Save serializes back to the path the resource was parsed from,
	// only if dirty.
	Save(locale *model.Locale) error
}

// ParseFunc parses the resource file at path. sourcePath points at the
// paired source file for asymmetric formats and may be empty otherwise.
type ParseFunc func(path, sourcePath string, locale *model.Locale) (ParsedResource, error)

// Registry maps file extensions to parsers. Formats are registered
// explicitly during process startup; there is no implicit scanning.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]ParseFunc
}

func NewRegistry() *Registry {
	return &Registry{parsers: map[string]ParseFunc{}}
}

// Register binds an extension (with leading dot, e.g. ".po") to a
// parser. Later registrations win, which is how third-party plugins
// override built-ins.
func (r *Registry) Register(extension string, fn ParseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[strings.ToLower(extension)] = fn
}

func (r *Registry) Supported(extension string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.parsers[normalizeExtension(extension)]
	return ok
}

// Parse dispatches on the file extension of p. pot files are handled by
// the po parser.
func (r *Registry) Parse(p, sourcePath string, locale *model.Locale) (ParsedResource, error) {
	ext := normalizeExtension(path.Ext(p))

	r.mu.RLock()
	fn, ok := r.parsers[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, faults.Configuration("translation format " + ext + " is not supported")
	}
	return fn(p, sourcePath, locale)
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext == ".pot" {
		return ".po"
	}
	return ext
}
