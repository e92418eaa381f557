package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

// memoryStorer is the slice of the engine the importer needs. Going
// through the full store path gives every imported note the same
// summaries and vector mirrors as a memory stored over MCP.
type memoryStorer interface {
	Store(ctx context.Context, content, topic string, tags []string) types.Response
}

// Result summarizes a completed import run.
type Result struct {
	FilesFound    int
	FilesImported int
	FilesSkipped  int
	FilesFailed   int

	// Topics counts imported notes per topic.
	Topics map[string]int

	Errors   []string
	Duration time.Duration
}

// Options configure an import run.
type Options struct {
	// DefaultTopic is used for notes with no frontmatter topic and no
	// parent directory to derive one from (default: "imported").
	DefaultTopic string

	// DryRun parses and counts without storing anything.
	DryRun bool
}

// Importer bulk-loads a directory of Markdown notes.
type Importer struct {
	engine       memoryStorer
	defaultTopic string
	dryRun       bool
}

// New creates an importer that stores notes through the given engine.
func New(engine memoryStorer, opts Options) *Importer {
	if opts.DefaultTopic == "" {
		opts.DefaultTopic = "imported"
	}
	return &Importer{
		engine:       engine,
		defaultTopic: opts.DefaultTopic,
		dryRun:       opts.DryRun,
	}
}

// Run imports every Markdown file under dir. Individual file failures are
// recorded in the result and do not stop the run.
func (imp *Importer) Run(ctx context.Context, dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}

	files, err := collectMarkdownFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %q: %w", dir, err)
	}

	start := time.Now()
	result := &Result{
		FilesFound: len(files),
		Topics:     make(map[string]int),
	}

	for _, absPath := range files {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}

		rel, _ := filepath.Rel(dir, absPath)

		data, err := os.ReadFile(absPath)
		if err != nil {
			log.Printf("import: skip %s: read error: %v", rel, err)
			result.FilesSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: read error: %v", rel, err))
			continue
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			result.FilesSkipped++
			continue
		}

		parsed, err := ParseMarkdownFile(data, absPath, rel)
		if err != nil {
			log.Printf("import: skip %s: parse error: %v", rel, err)
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: parse error: %v", rel, err))
			continue
		}

		topic := parsed.Topic
		if topic == "" {
			topic = imp.defaultTopic
		}

		if !imp.dryRun {
			resp := imp.engine.Store(ctx, parsed.Content, topic, parsed.Tags)
			if resp.IsError() {
				msg, _ := resp["message"].(string)
				log.Printf("import: failed to store %s: %s", rel, msg)
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: store error: %s", rel, msg))
				continue
			}
		}

		result.FilesImported++
		result.Topics[topic]++
	}

	result.Duration = time.Since(start)
	return result, nil
}

// collectMarkdownFiles walks dir and returns all .md / .markdown files.
// Hidden directories (.obsidian, .git, .trash) are skipped; the root is
// exempt so "." works as an import root.
func collectMarkdownFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
