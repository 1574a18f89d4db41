package static

import (
	"embed"
	"path"
)

//go:embed pages/*.html
var pagesFS embed.FS

// Page returns the embedded HTML page with the given file name.
func Page(name string) ([]byte, error) {
	return pagesFS.ReadFile(path.Join("pages", name))
}
