// Package tmx writes Translation Memory eXchange 1.4 documents.
package tmx

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Unit is one translation memory pair to export.
type Unit struct {
	ProjectSlug  string
	ResourcePath string
	EntityKey    string
	Source       string
	Target       string
}

// TUID derives the stable translation unit identifier.
func (u Unit) TUID() string {
	return fmt.Sprintf("%s:%s:%s",
		u.ProjectSlug, Slugify(u.ResourcePath), Slugify(u.EntityKey))
}

var nonSlug = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify collapses anything outside [a-zA-Z0-9] into single dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(s, "-"), "-")
}

// Write streams a TMX 1.4 document. Units are written one at a time so
// arbitrarily large memories export in constant memory.
func Write(w io.Writer, sourceLang, targetLang string, units []Unit) error {
	bw := bufio.NewWriter(w)

	fmt.Fprint(bw, xml.Header)
	fmt.Fprintln(bw, `<tmx version="1.4">`)
	fmt.Fprintf(bw, "  <header adminlang=\"en-US\" creationtool=\"crowdlate\" creationtoolversion=\"1.0\" datatype=\"plaintext\" o-tmf=\"plain text\" segtype=\"sentence\" srclang=%q></header>\n", sourceLang)
	fmt.Fprintln(bw, "  <body>")

	for _, u := range units {
		if u.Source == "" || u.Target == "" {
			continue
		}
		fmt.Fprintf(bw, "    <tu tuid=%q srclang=%q>\n", u.TUID(), sourceLang)
		if err := writeTUV(bw, sourceLang, u.Source); err != nil {
			return err
		}
		if err := writeTUV(bw, targetLang, u.Target); err != nil {
			return err
		}
		fmt.Fprintln(bw, "    </tu>")
	}

	fmt.Fprintln(bw, "  </body>")
	fmt.Fprintln(bw, "</tmx>")
	return bw.Flush()
}

func writeTUV(w *bufio.Writer, lang, text string) error {
	fmt.Fprintf(w, "      <tuv xml:lang=%q><seg>", lang)
	if err := xml.EscapeText(w, []byte(text)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "</seg></tuv>")
	return err
}
