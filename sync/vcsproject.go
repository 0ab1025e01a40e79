// Package sync pulls VCS checkouts and the database into a common
// shape, reconciles them through a single-use changeset, and pushes the
// results back out to both sides.
package sync

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/model"
)

// Directory names that may hold canonical source strings, in preference
// order.
var sourceDirNames = []string{"templates", "en-US", "en-us", "en_US", "en"}

// VCSTranslation is one locale's answer for an entity as read from
// disk.
type VCSTranslation struct {
	Strings map[int]string
	Fuzzy   bool
}

// VCSEntity is one translatable unit as defined by the source file,
// with per-locale translations merged in from the locale files.
type VCSEntity struct {
	Key          string
	String       string
	StringPlural string
	Comment      string
	Order        int
	Source       []string

	// Translations is keyed by locale ID. Absence means the locale file
	// had no (or an empty) translation for the unit.
	Translations map[int64]*VCSTranslation
}

// VCSResource is one resource file family: the source file plus one
// target file per locale.
type VCSResource struct {
	Path     string
	Entities map[string]*VCSEntity

	files map[int64]formats.ParsedResource
}

// File returns the parsed locale file for writing, or nil when the
// locale has no file on disk for this resource.
func (r *VCSResource) File(localeID int64) formats.ParsedResource {
	return r.files[localeID]
}

// VCSProject is the on-disk side of a sync run: every resource under
// the project's source directory with the translations currently
// checked out for each locale.
type VCSProject struct {
	SourceDir string
	Resources map[string]*VCSResource
}

type checkoutLayout struct {
	// sourceDir holds the canonical resource files.
	sourceDir string
	// localeDirs maps locale ID to the directory holding that locale's
	// files. Locales without a directory are absent.
	localeDirs map[int64]string
}

// LoadVCSProject walks the project's checkouts and parses every
// resource for every locale that has a directory on disk. Locales
// without a directory are skipped with a warning; for projects using
// asymmetric formats the directory is created instead so new locales
// bootstrap themselves.
func LoadVCSProject(registry *formats.Registry, layout checkoutLayout, locales []*model.Locale, log logr.Logger) (*VCSProject, error) {
	paths, err := discoverResourcePaths(registry, layout.sourceDir)
	if err != nil {
		return nil, err
	}

	project := &VCSProject{
		SourceDir: layout.sourceDir,
		Resources: map[string]*VCSResource{},
	}
	templateLocale := &model.Locale{Code: "templates"}

	for _, relPath := range paths {
		sourcePath := filepath.Join(layout.sourceDir, relPath)
		format, err := model.PathFormat(relPath)
		if err != nil {
			continue
		}

		resource := &VCSResource{
			Path:     targetRelPath(relPath),
			Entities: map[string]*VCSEntity{},
			files:    map[int64]formats.ParsedResource{},
		}

		sourceSourcePath := ""
		if format.IsAsymmetric() {
			sourceSourcePath = sourcePath
		}
		parsedSource, err := registry.Parse(sourcePath, sourceSourcePath, templateLocale)
		if err != nil {
			log.Error(err, "skipping unparseable source file", "path", sourcePath)
			continue
		}
		for _, u := range parsedSource.Units() {
			resource.Entities[u.Key] = &VCSEntity{
				Key:          u.Key,
				String:       u.SourceString,
				StringPlural: u.SourcePlural,
				Comment:      strings.Join(u.Comments, "\n"),
				Order:        u.Order,
				Source:       u.Source,
				Translations: map[int64]*VCSTranslation{},
			}
		}

		for _, locale := range locales {
			dir, ok := layout.localeDirs[locale.ID]
			if !ok {
				continue
			}
			targetPath := filepath.Join(dir, resource.Path)
			if _, err := os.Stat(targetPath); err != nil && !format.IsAsymmetric() {
				// symmetric formats carry their own keys, so a missing
				// file simply means the locale has not started
				continue
			}
			asymSource := ""
			if format.IsAsymmetric() {
				asymSource = sourcePath
			}
			parsed, err := registry.Parse(targetPath, asymSource, locale)
			if err != nil {
				log.Error(err, "skipping unparseable locale file",
					"path", targetPath, "locale", locale.Code)
				continue
			}
			resource.files[locale.ID] = parsed
			for _, u := range parsed.Units() {
				entity, ok := resource.Entities[u.Key]
				if !ok || !u.HasTranslation() {
					continue
				}
				entity.Translations[locale.ID] = &VCSTranslation{
					Strings: u.Strings,
					Fuzzy:   u.Fuzzy,
				}
			}
		}

		project.Resources[resource.Path] = resource
	}
	return project, nil
}

// targetRelPath maps a source file name to the locale file name.
// Gettext templates use the pot extension only on the source side.
func targetRelPath(relPath string) string {
	if strings.HasSuffix(relPath, ".pot") {
		return strings.TrimSuffix(relPath, ".pot") + ".po"
	}
	return relPath
}

func discoverResourcePaths(registry *formats.Registry, sourceDir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(sourceDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != sourceDir {
				return filepath.SkipDir
			}
			return nil
		}
		if registry.Supported(filepath.Ext(p)) {
			rel, err := filepath.Rel(sourceDir, p)
			if err != nil {
				return err
			}
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// findSourceDir locates the directory holding canonical source files
// inside a checkout, preferring templates over source-locale folders.
func findSourceDir(checkout string) (string, bool) {
	for _, name := range sourceDirNames {
		var found string
		_ = filepath.WalkDir(checkout, func(p string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") && p != checkout {
				return filepath.SkipDir
			}
			if d.Name() == name && found == "" {
				found = p
			}
			return nil
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// findLocaleDir locates the directory named after the locale code,
// tolerating the underscore spelling.
func findLocaleDir(checkout string, locale *model.Locale) (string, bool) {
	names := map[string]bool{
		locale.Code: true,
		strings.ReplaceAll(locale.Code, "-", "_"): true,
	}
	var found string
	_ = filepath.WalkDir(checkout, func(p string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && p != checkout {
			return filepath.SkipDir
		}
		if names[d.Name()] && found == "" {
			found = p
		}
		return nil
	})
	return found, found != ""
}
