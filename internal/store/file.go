package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tasksched/internal/task"
)

const tasksKey = "tasks"

// FileStore keeps tasks in a YAML document under a top-level "tasks" list.
// Add and Remove edit the parsed document in place, so comments and
// entries this version cannot decode survive a rewrite.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by the YAML file at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(_ context.Context) ([]task.Record, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		s.logger.Warn("store: task file not loaded", "path", s.path, "error", err)
		return nil, []error{err}
	}

	seq := doc.tasks()
	var (
		records []task.Record
		errs    []error
		seen    = make(map[string]struct{}, len(seq.Content))
	)
	for i, item := range seq.Content {
		var rec task.Record
		if err := item.Decode(&rec); err != nil {
			errs = append(errs, fmt.Errorf("store: %s: tasks[%d] (line %d): %w: %v", s.path, i, item.Line, task.ErrInvalidRecord, err))
			continue
		}
		if rec.ID == "" {
			errs = append(errs, fmt.Errorf("store: %s: tasks[%d] (line %d): %w: missing id", s.path, i, item.Line, task.ErrInvalidRecord))
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			errs = append(errs, fmt.Errorf("store: %s: tasks[%d] (line %d): %w: %q", s.path, i, item.Line, task.ErrDuplicateID, rec.ID))
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, task.Normalize(rec))
	}
	for _, err := range errs {
		s.logger.Warn("store: skipping malformed task", "error", err)
	}
	return records, errs
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, records []task.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []task.Record{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]task.Record{tasksKey: records}); err != nil {
		return fmt.Errorf("store: encoding tasks: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("store: encoding tasks: %w", err)
	}
	return s.write(buf.Bytes())
}

// Add implements Store.
func (s *FileStore) Add(_ context.Context, rec task.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	seq := doc.tasks()
	for _, item := range seq.Content {
		if itemID(item) == rec.ID {
			return fmt.Errorf("store: %w: %q", task.ErrDuplicateID, rec.ID)
		}
	}

	var node yaml.Node
	if err := node.Encode(task.Normalize(rec)); err != nil {
		return fmt.Errorf("store: encoding task %q: %w", rec.ID, err)
	}
	seq.Content = append(seq.Content, &node)
	return s.writeDoc(doc)
}

// Remove implements Store.
func (s *FileStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	seq := doc.tasks()
	kept := seq.Content[:0:0]
	for _, item := range seq.Content {
		if itemID(item) != id {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(seq.Content) {
		return fmt.Errorf("store: %w: %q", task.ErrNotFound, id)
	}
	seq.Content = kept
	return s.writeDoc(doc)
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (task.Record, error) {
	records, _ := s.Load(ctx)
	return find(records, id)
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// document is a parsed task file.
type document struct {
	root yaml.Node
}

// tasks returns the "tasks" sequence node.
func (d *document) tasks() *yaml.Node {
	mapping := d.root.Content[0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == tasksKey {
			return mapping.Content[i+1]
		}
	}
	// read guarantees the key exists.
	panic("store: document without tasks key")
}

// read parses the file. A missing or empty file yields an empty document;
// anything that is not a mapping with an optional "tasks" list is corrupt.
func (s *FileStore) read() (*document, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("store: reading %s: %w: %w", s.path, task.ErrStoreUnreadable, err)
	}

	doc := &document{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := yaml.Unmarshal(raw, &doc.root); err != nil {
			return nil, fmt.Errorf("store: %s: %w: %v", s.path, task.ErrStoreCorrupt, err)
		}
	}

	if doc.root.Kind != yaml.DocumentNode || len(doc.root.Content) == 0 || isNull(doc.root.Content[0]) {
		doc.root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	mapping := doc.root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("store: %s: %w: top level is not a mapping", s.path, task.ErrStoreCorrupt)
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != tasksKey {
			continue
		}
		value := mapping.Content[i+1]
		switch {
		case value.Kind == yaml.SequenceNode:
		case isNull(value):
			mapping.Content[i+1] = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		default:
			return nil, fmt.Errorf("store: %s: %w: %q is not a list", s.path, task.ErrStoreCorrupt, tasksKey)
		}
		return doc, nil
	}

	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: tasksKey},
		&yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"},
	)
	return doc, nil
}

func (s *FileStore) writeDoc(doc *document) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc.root); err != nil {
		return fmt.Errorf("store: encoding %s: %w", s.path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("store: encoding %s: %w", s.path, err)
	}
	return s.write(buf.Bytes())
}

// write replaces the file through a temporary sibling and a rename.
func (s *FileStore) write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("store: writing %s: %w", s.path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: writing %s: %w", s.path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: writing %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: writing %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("store: replacing %s: %w", s.path, err)
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// itemID returns the "id" scalar of a task mapping node.
func itemID(n *yaml.Node) string {
	if n.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "id" {
			return n.Content[i+1].Value
		}
	}
	return ""
}
