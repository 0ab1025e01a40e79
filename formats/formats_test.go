package formats

import (
	"testing"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var gotPath string
	r.Register(".po", func(path, sourcePath string, locale *model.Locale) (ParsedResource, error) {
		gotPath = path
		return nil, nil
	})

	if _, err := r.Parse("locales/fr/app.po", "", nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if gotPath != "locales/fr/app.po" {
		t.Fatalf("parser saw path %q", gotPath)
	}

	// pot dispatches to the po handler.
	if _, err := r.Parse("templates/app.pot", "", nil); err != nil {
		t.Fatalf("pot parse: %v", err)
	}

	_, err := r.Parse("app.tbx", "", nil)
	if !faults.IsCategory(err, faults.ConfigurationError) {
		t.Fatalf("expected configuration error for unsupported format, got %v", err)
	}
}

func TestRegistryPluginOverride(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(".xyz", func(path, sourcePath string, locale *model.Locale) (ParsedResource, error) {
		return nil, nil
	})
	if !r.Supported(".xyz") {
		t.Fatalf("expected plugin extension to be supported")
	}
	if r.Supported(".abc") {
		t.Fatalf("unregistered extension must not be supported")
	}
}
