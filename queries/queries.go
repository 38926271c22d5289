// Package queries ships the airline and customer-support analyses as query
// definitions.
package queries

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/vegasq/aggcat/definition"
)

//go:embed *.yaml
var files embed.FS

// FS exposes the raw definition files.
func FS() fs.FS { return files }

// All parses every shipped definition in file name order.
func All() ([]*definition.Definition, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}
	defs := make([]*definition.Definition, 0, len(entries))
	for _, e := range entries {
		def, err := parse(e.Name())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Get returns the shipped definition with the given name.
func Get(name string) (*definition.Definition, error) {
	defs, err := All()
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no shipped query named %q", name)
}

func parse(file string) (*definition.Definition, error) {
	data, err := files.ReadFile(file)
	if err != nil {
		return nil, err
	}
	def, err := definition.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	def.Path = file
	if def.Name == "" {
		def.Name = strings.TrimSuffix(file, path.Ext(file))
	}
	return def, nil
}
