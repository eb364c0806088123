// Package importer reads bill input bundles: invoices, labor records and
// change orders that were already extracted upstream.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cleared-dev/b2a/internal/model"
)

// Bundle is the content of one input file.
type Bundle struct {
	Invoices     []model.Invoice            `json:"invoices" yaml:"invoices"`
	Labor        []model.Labor              `json:"labor" yaml:"labor"`
	ChangeOrders []model.ChangeOrderSummary `json:"change_orders" yaml:"change_orders"`
}

// Validate rejects documents without an id and ids used twice.
func (b *Bundle) Validate() error {
	seen := make(map[string]string)
	check := func(kind, docID string, i int) error {
		if docID == "" {
			return fmt.Errorf("%s %d has no id", kind, i+1)
		}
		if prev, ok := seen[docID]; ok {
			return fmt.Errorf("%s id %q already used by a %s", kind, docID, prev)
		}
		seen[docID] = kind
		return nil
	}
	for i, inv := range b.Invoices {
		if err := check("invoice", inv.ID, i); err != nil {
			return err
		}
	}
	for i, l := range b.Labor {
		if err := check("labor record", l.ID, i); err != nil {
			return err
		}
	}
	for i, co := range b.ChangeOrders {
		if err := check("change order", co.UUID, i); err != nil {
			return err
		}
	}
	return nil
}

// Merge appends the documents of other.
func (b *Bundle) Merge(other *Bundle) {
	b.Invoices = append(b.Invoices, other.Invoices...)
	b.Labor = append(b.Labor, other.Labor...)
	b.ChangeOrders = append(b.ChangeOrders, other.ChangeOrders...)
}

// Parser decodes a bundle file.
type Parser interface {
	Parse(r io.Reader) (*Bundle, error)
	Format() string
	Extensions() []string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
	byExt   map[string]Parser
}

// FileInfo describes a bundle file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser), byExt: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format or extension.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
	for _, ext := range p.Extensions() {
		ext = strings.ToLower(ext)
		if _, ok := r.byExt[ext]; ok {
			panic("duplicate parser extension: " + ext)
		}
		r.byExt[ext] = p
	}
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// ForPath returns the parser for a file's extension, or nil.
func (r *Registry) ForPath(path string) Parser {
	return r.byExt[strings.ToLower(filepath.Ext(path))]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&JSONParser{})
	r.Register(&YAMLParser{})
	return r
}

// Load reads and validates one bundle file.
func (r *Registry) Load(path string) (*Bundle, error) {
	p := r.ForPath(path)
	if p == nil {
		return nil, fmt.Errorf("no parser for %s", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	b, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return b, nil
}

// importDir is the subdirectory for input bundles.
const importDir = "import"

// processedDir is the subdirectory for bundles already billed.
const processedDir = "import/processed"

// Scan returns the bundle files in <root>/import/ that reg can parse.
func Scan(root string, reg *Registry) ([]FileInfo, error) {
	dir := filepath.Join(root, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || reg.ForPath(e.Name()) == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(root, fileName string) error {
	src := filepath.Join(root, importDir, fileName)
	dstDir := filepath.Join(root, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
