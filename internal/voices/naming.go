package voices

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IndexFileName is the name of the XML index written next to the exports.
const IndexFileName = "NotenIndex.xml"

const defaultZipName = "stimmen_export.zip"

var pathSeparators = strings.NewReplacer("/", "_", `\`, "_")

// FileName is the export file name of one voice. Dots are dropped from the
// label only; path separators become underscores.
func FileName(title, label string) string {
	name := title + " - " + strings.ReplaceAll(label, ".", "") + ".pdf"
	return norm.NFC.String(pathSeparators.Replace(name))
}

// ZipName is the name of the bundle for a piece.
func ZipName(title string) string {
	if title == "" {
		return defaultZipName
	}
	name := strings.NewReplacer(" ", "_", "/", "_").Replace(title + ".zip")
	return norm.NFC.String(name)
}
