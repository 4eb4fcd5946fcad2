// Package docs renders the asciidoc reference pages served by the API.
package docs

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/bytesparadise/libasciidoc"
	"github.com/bytesparadise/libasciidoc/pkg/configuration"
)

// APIReference is the page generated by cmd/docgen.
const APIReference = "api.adoc"

// ErrNotFound is returned for a page that does not exist.
var ErrNotFound = errors.New("doc not found")

//go:embed *.adoc
var embedded embed.FS

// Embedded returns the pages compiled into the binary.
func Embedded() fs.FS { return embedded }

type Service struct {
	pages fs.FS
	cache map[string]string // filename -> html content
	mu    sync.RWMutex
}

// NewService renders pages read from fsys.
func NewService(fsys fs.FS) *Service {
	return &Service{
		pages: fsys,
		cache: make(map[string]string),
	}
}

// GetDoc returns the HTML body of filename, rendering it on first use.
func (s *Service) GetDoc(ctx context.Context, filename string) (string, error) {
	s.mu.RLock()
	content, ok := s.cache[filename]
	s.mu.RUnlock()
	if ok {
		return content, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := fs.ReadFile(s.pages, filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", filename, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read doc file: %w", err)
	}

	output := bytes.NewBuffer(nil)
	config := configuration.NewConfiguration(
		configuration.WithHeaderFooter(true),
		configuration.WithAttribute("toc", "left"),
	)
	if _, err := libasciidoc.Convert(bytes.NewReader(data), output, config); err != nil {
		return "", fmt.Errorf("failed to convert asciidoc: %w", err)
	}

	html := output.String()
	s.mu.Lock()
	s.cache[filename] = html
	s.mu.Unlock()
	return html, nil
}

// ListDocs returns the available page names in order.
func (s *Service) ListDocs() ([]string, error) {
	entries, err := fs.ReadDir(s.pages, ".")
	if err != nil {
		return nil, err
	}

	var docs []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".adoc") {
			docs = append(docs, entry.Name())
		}
	}
	sort.Strings(docs)
	return docs, nil
}
