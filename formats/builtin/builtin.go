// Package builtin registers the built-in format parsers. Call Register
// once during process startup; third-party formats go through
// Registry.Register directly.
package builtin

import (
	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/formats/lang"
	"github.com/crowdlate/crowdlate/formats/po"
	"github.com/crowdlate/crowdlate/formats/properties"
	"github.com/crowdlate/crowdlate/formats/xliff"
)

func Register(r *formats.Registry) {
	r.Register(".po", po.Parse)
	r.Register(".pot", po.Parse)
	r.Register(".properties", properties.Parse)
	r.Register(".lang", lang.Parse)
	r.Register(".xliff", xliff.Parse)
}
