package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// LoadFiles reads every .ndjson and .json file under the given paths.
// Directories are walked recursively in lexical order. A .json file holds a
// single resource or a Bundle, whose entry resources are loaded.
func LoadFiles(ctx context.Context, logger zerolog.Logger, paths ...string) ([]*fhir.Resource, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("corpus path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isCorpusFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	sort.Strings(files)

	var out []*fhir.Resource
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rs, err := loadFile(f)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("file", f).Int("resources", len(rs)).Msg("corpus file loaded")
		out = append(out, rs...)
	}
	logger.Info().Int("files", len(files)).Int("resources", len(out)).Msg("corpus loaded from files")
	return out, nil
}

func isCorpusFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ndjson", ".json":
		return true
	}
	return false
}

func loadFile(path string) ([]*fhir.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out []*fhir.Resource
	if strings.EqualFold(filepath.Ext(path), ".ndjson") {
		err = fhir.ReadNDJSON(bytes.NewReader(data), func(r *fhir.Resource) error {
			out = append(out, r)
			return nil
		})
	} else {
		out, err = decodeDocument(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// decodeDocument unpacks a Bundle into its entry resources, or returns the
// document itself.
func decodeDocument(data []byte) ([]*fhir.Resource, error) {
	doc, err := fhir.ParseResource(data)
	if err != nil {
		return nil, err
	}
	if doc.Type() != "Bundle" {
		return []*fhir.Resource{doc}, nil
	}
	var out []*fhir.Resource
	for i, e := range doc.Get("entry").Items() {
		raw, ok := e.Field("resource").Raw().(map[string]any)
		if !ok {
			continue
		}
		r, err := fhir.NewResource(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, r)
	}
	if len(out) == 0 && !doc.Get("entry").IsEmpty() {
		return nil, errors.New("bundle entries carry no resources")
	}
	return out, nil
}
