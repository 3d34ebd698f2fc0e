package ingest

import (
	"os"
	"path/filepath"
	"strings"
)

// findEntryDocument locates the HTML document the bundle renders from.
// Precedence is strict: a root index.html, then any root HTML file, then the
// first HTML file one directory level down in listing order.
func findEntryDocument(scope string) (string, error) {
	entries, err := os.ReadDir(scope)
	if err != nil {
		return "", errOf(KindMalformed, "storage unreadable", err)
	}

	var rootHTML string
	var subdirs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			subdirs = append(subdirs, name)
			continue
		}
		if name == "index.html" {
			return name, nil
		}
		if rootHTML == "" && isHTMLName(name) {
			rootHTML = name
		}
	}
	if rootHTML != "" {
		return rootHTML, nil
	}

	for _, dir := range subdirs {
		children, err := os.ReadDir(filepath.Join(scope, dir))
		if err != nil {
			continue
		}
		for _, child := range children {
			if !child.IsDir() && isHTMLName(child.Name()) {
				return filepath.ToSlash(filepath.Join(dir, child.Name())), nil
			}
		}
	}

	return "", errOf(KindNoEntryDocument, "bundle contains no HTML entry document", nil)
}

func isHTMLName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".html" || ext == ".htm"
}
