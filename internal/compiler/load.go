package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/shelf/internal/schema"
)

// LoadCollections loads every collection declared under dir (a directory of
// .cue files forming one CUE package, or a single .cue file).
// Compilation errors are collected; the schemas that compiled are returned
// alongside them, sorted by name.
func LoadCollections(dir string) ([]*schema.Schema, []error) {
	value, err := LoadValue(dir)
	if err != nil {
		return nil, []error{err}
	}

	collectionsVal := value.LookupPath(cue.ParsePath("collection"))
	if !collectionsVal.Exists() {
		return nil, []error{fmt.Errorf("no collections declared in %s", dir)}
	}

	iter, err := collectionsVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		schemas []*schema.Schema
		errs    []error
	)
	for iter.Next() {
		s, err := CompileCollection(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("collection.%s: %w", iter.Label(), err))
			continue
		}
		schemas = append(schemas, s)
	}

	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name() < schemas[j].Name() })
	return schemas, errs
}

// LoadCollection loads dir and compiles the named collection.
func LoadCollection(dir, name string) (*schema.Schema, error) {
	value, err := LoadValue(dir)
	if err != nil {
		return nil, err
	}
	v := value.LookupPath(cue.MakePath(cue.Str("collection"), cue.Str(name)))
	if !v.Exists() {
		return nil, fmt.Errorf("collection %q not declared in %s", name, dir)
	}
	return CompileCollection(v)
}

// LoadValue builds the CUE value for a directory or single file.
func LoadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("schema path: %w", err)
	}

	ctx := cuecontext.New()

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, fmt.Errorf("reading %s: %w", path, err)
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		return v, nil
	}

	files, err := FindCUEFiles(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("scanning %s: %w", path, err)
	}
	if len(files) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE files found in %s", path)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
