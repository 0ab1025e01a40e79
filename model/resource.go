package model

import (
	"path"
	"strings"

	"github.com/crowdlate/crowdlate/faults"
)

type Format string

const (
	FormatPO         Format = "po"
	FormatXLIFF      Format = "xliff"
	FormatProperties Format = "properties"
	FormatDTD        Format = "dtd"
	FormatINC        Format = "inc"
	FormatINI        Format = "ini"
	FormatLang       Format = "lang"
	FormatL20N       Format = "l20n"
	FormatFTL        Format = "ftl"
)

// Asymmetric formats cannot enumerate all translatable keys from the
// target-locale file alone and need a paired source file.
var asymmetricFormats = map[Format]bool{
	FormatDTD:        true,
	FormatProperties: true,
	FormatINI:        true,
	FormatINC:        true,
	FormatL20N:       true,
	FormatFTL:        true,
}

func (f Format) IsAsymmetric() bool {
	return asymmetricFormats[f]
}

// Resource is one translatable file within a project, identified by its
// project-relative path.
type Resource struct {
	ID           int64
	ProjectID    int64
	Path         string
	Format       Format
	TotalStrings int
}

func (r *Resource) IsAsymmetric() bool {
	return r.Format.IsAsymmetric()
}

// PathFormat derives the format tag from a file path. pot files are
// structurally POs holding only source strings.
func PathFormat(p string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if ext == "pot" {
		return FormatPO, nil
	}
	switch f := Format(ext); f {
	case FormatPO, FormatXLIFF, FormatProperties, FormatDTD, FormatINC,
		FormatINI, FormatLang, FormatL20N, FormatFTL:
		return f, nil
	}
	return "", faults.Configuration("translation format ." + ext + " is not supported")
}
