// Command docgen builds internal/docs/api.adoc from the @Title, @Route,
// @Description and @Response annotations on the API handlers.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

type Endpoint struct {
	Title       string
	Route       string
	Description string
	Response    string
}

var (
	reTitle = regexp.MustCompile(`// @Title: (.*)`)
	reRoute = regexp.MustCompile(`// @Route: (.*)`)
	reDesc  = regexp.MustCompile(`// @Description: (.*)`)
	reResp  = regexp.MustCompile(`// @Response: (.*)`)
)

func main() {
	apiDir := "internal/api"
	out := "internal/docs/api.adoc"
	if len(os.Args) > 1 {
		apiDir = os.Args[1]
	}
	if len(os.Args) > 2 {
		out = os.Args[2]
	}

	endpoints, err := scan(apiDir)
	if err != nil {
		log.Fatalf("docgen: %v", err)
	}
	if err := os.WriteFile(out, []byte(render(endpoints)), 0o644); err != nil {
		log.Fatalf("docgen: %v", err)
	}
	fmt.Printf("Generated %s (%d endpoints)\n", out, len(endpoints))
}

// scan reads annotation blocks from the non-test Go files of dir in file
// name order. A block ends at its @Response line.
func scan(dir string) ([]Endpoint, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f.Name(), ".go") && !strings.HasSuffix(f.Name(), "_test.go") {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	var endpoints []Endpoint
	for _, name := range names {
		found, err := scanFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, found...)
	}
	return endpoints, nil
}

func scanFile(path string) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		endpoints []Endpoint
		current   Endpoint
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if match := reTitle.FindStringSubmatch(line); len(match) > 1 {
			current.Title = strings.TrimSpace(match[1])
		}
		if match := reRoute.FindStringSubmatch(line); len(match) > 1 {
			current.Route = strings.TrimSpace(match[1])
		}
		if match := reDesc.FindStringSubmatch(line); len(match) > 1 {
			current.Description = strings.TrimSpace(match[1])
		}
		if match := reResp.FindStringSubmatch(line); len(match) > 1 {
			current.Response = strings.TrimSpace(match[1])
			if current.Title != "" && current.Route != "" {
				endpoints = append(endpoints, current)
			}
			current = Endpoint{}
		}
	}
	return endpoints, scanner.Err()
}

func render(endpoints []Endpoint) string {
	var b strings.Builder
	b.WriteString("= Karma Stakes API Reference\n")
	b.WriteString(":toc: left\n\n")
	b.WriteString("Generated by cmd/docgen from the handler annotations in internal/api.\n")
	b.WriteString("Amounts are decimal strings in ledger base units.\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "\n== %s\n\n", ep.Title)
		fmt.Fprintf(&b, "`+%s+`\n\n", ep.Route)
		if ep.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", ep.Description)
		}
		b.WriteString(".Response\n----\n")
		b.WriteString(ep.Response)
		b.WriteString("\n----\n")
	}
	return b.String()
}
