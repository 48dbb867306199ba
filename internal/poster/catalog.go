package poster

import (
	"path/filepath"
	"sort"
	"strings"
)

// Catalog lists theme presets. A preset is a JSON file under the themes
// directory; its name is the file base name without extension. The directory
// is re-read on every call so presets can be added without a restart.
type Catalog struct {
	dir string
}

func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// List returns the sorted preset names.
func (c *Catalog) List() []string {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		names = append(names, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a known preset.
func (c *Catalog) Has(name string) bool {
	for _, n := range c.List() {
		if n == name {
			return true
		}
	}
	return false
}
