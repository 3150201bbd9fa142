package sstable

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Descriptor identifies the component files of one SSTable generation
// inside a directory. Files follow the "<generation>-big-<Component>"
// naming convention, e.g. "1-big-Data.db".
type Descriptor struct {
	Dir        string
	Generation int

	components map[string]string // component name -> file name
}

// Describe discovers an SSTable in a directory. When a TOC.txt is present
// its manifest wins; otherwise the directory listing is used. All
// components must share one generation, and Data.db must exist; every
// other component degrades gracefully when absent.
func Describe(dir string) (*Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{Dir: dir, Generation: -1, components: make(map[string]string)}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		gen, component, ok := splitComponentName(ent.Name())
		if !ok {
			continue
		}
		if d.Generation < 0 {
			d.Generation = gen
		} else if gen != d.Generation {
			return nil, &FormatError{
				Component: ent.Name(),
				Reason:    fmt.Sprintf("mixed generations %d and %d in %s", d.Generation, gen, dir),
			}
		}
		d.components[component] = ent.Name()
	}

	if name, ok := d.components[ComponentTOC]; ok {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		listed := make(map[string]bool)
		for _, component := range ParseTOC(raw) {
			listed[component] = true
		}
		listed[ComponentTOC] = true
		for component := range d.components {
			if !listed[component] {
				delete(d.components, component)
			}
		}
	}

	if _, ok := d.components[ComponentData]; !ok {
		return nil, &FormatError{Component: ComponentData, Reason: "missing from " + dir}
	}
	return d, nil
}

// ParseTOC parses the TOC.txt manifest: one component name per line.
func ParseTOC(p []byte) []string {
	var out []string
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Has reports whether the named component is present.
func (d *Descriptor) Has(component string) bool {
	_, ok := d.components[component]
	return ok
}

// Path returns the full path of the named component.
func (d *Descriptor) Path(component string) (string, bool) {
	name, ok := d.components[component]
	if !ok {
		return "", false
	}
	return filepath.Join(d.Dir, name), true
}

// Components lists the discovered component names.
func (d *Descriptor) Components() []string {
	out := make([]string, 0, len(d.components))
	for component := range d.components {
		out = append(out, component)
	}
	return out
}

// readComponent loads an optional component file in full. Missing files
// yield (nil, nil).
func (d *Descriptor) readComponent(component string) ([]byte, error) {
	path, ok := d.Path(component)
	if !ok {
		return nil, nil
	}
	return os.ReadFile(path)
}

// splitComponentName parses "<generation>-big-<Component>".
func splitComponentName(name string) (int, string, bool) {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) != 3 || parts[1] != "big" {
		return 0, "", false
	}
	gen, err := strconv.Atoi(parts[0])
	if err != nil || gen < 0 {
		return 0, "", false
	}
	return gen, parts[2], true
}
