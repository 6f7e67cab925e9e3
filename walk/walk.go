// Package walk traverses a content repository and fans file parsing out
// across a bounded worker pool, aggregating nodes and relationships per pack.
//
// Output ordering is not deterministic; the graph store imposes its own
// ordering through unique keys.
package walk

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/zero-day-ai/packgraph/classify"
	"github.com/zero-day-ai/packgraph/content"
	"github.com/zero-day-ai/packgraph/parse"
)

const packsFolder = "Packs"

// tracer emits one span per walk; exporters are the host binary's concern.
var tracer = otel.Tracer("packgraph/walk")

// Result aggregates everything a walk produced.
type Result struct {
	Nodes         content.Nodes
	Relationships content.Relationships
	Diagnostics   []*parse.Diagnostic

	// Packs lists the pack ids that were walked, sorted.
	Packs []string
}

// Walker traverses pack trees. Safe for reuse across walks.
type Walker struct {
	classifier *classify.Classifier
	workers    int
	queueSize  int
	log        *slog.Logger
}

// Option configures a Walker.
type Option func(*Walker)

// WithWorkers caps the worker pool size. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(w *Walker) {
		if n >= 1 {
			w.workers = n
		}
	}
}

// WithLogger sets the walker's logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Walker) { w.log = log }
}

// New creates a Walker. The default worker count comes from Workers().
func New(opts ...Option) *Walker {
	w := &Walker{
		classifier: classify.New(classify.WithSniffer(parse.Sniff)),
		workers:    Workers(),
		queueSize:  256,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// task is one file dispatched to the pool.
type task struct {
	path             string
	ct               content.ContentType
	packID           string
	packMarketplaces []content.Marketplace
}

// Walk parses every recognized artifact under repoRoot/Packs. When
// packFilter is non-empty only the named packs are walked. Cancellation is
// cooperative: producers stop dispatching and in-flight tasks drain without
// partial commit into the result.
func (w *Walker) Walk(ctx context.Context, repoRoot string, packFilter []string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "walk")
	defer span.End()

	packs, err := w.selectPacks(repoRoot, packFilter)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Nodes:         content.Nodes{},
		Relationships: content.Relationships{},
		Packs:         packs,
	}

	tasks := make(chan task, w.queueSize)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tk := range tasks {
				w.runTask(repoRoot, tk, res, &mu)
			}
		}()
	}

	err = w.produce(ctx, repoRoot, packs, tasks, res, &mu)
	close(tasks)
	wg.Wait()
	if err != nil {
		return nil, err
	}

	w.resolveTestConf(repoRoot, res)

	w.log.Debug("walk finished",
		"packs", len(packs),
		"nodes", res.Nodes.Len(),
		"relationships", res.Relationships.Len(),
		"diagnostics", len(res.Diagnostics))
	return res, nil
}

// selectPacks enumerates repoRoot/Packs, applying the filter.
func (w *Walker) selectPacks(repoRoot string, packFilter []string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(repoRoot, packsFolder))
	if err != nil {
		return nil, err
	}
	filter := make(map[string]bool, len(packFilter))
	for _, p := range packFilter {
		filter[p] = true
	}
	var packs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if len(filter) > 0 && !filter[e.Name()] {
			continue
		}
		packs = append(packs, e.Name())
	}
	sort.Strings(packs)
	return packs, nil
}

// produce walks each selected pack and feeds the task queue. The queue is
// bounded; the producer blocks when workers fall behind.
func (w *Walker) produce(ctx context.Context, repoRoot string, packs []string, tasks chan<- task, res *Result, mu *sync.Mutex) error {
	for _, packID := range packs {
		packDir := filepath.Join(repoRoot, packsFolder, packID)

		// pack_metadata.json is parsed inline: its marketplaces are the
		// default for every item in the pack, so it must land first.
		marketplaces := w.parsePackMetadata(repoRoot, packDir, packID, res, mu)

		err := filepath.WalkDir(packDir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if d.Name() == "TestData" {
					return filepath.SkipDir
				}
				return nil
			}
			if !parseableExt(path) {
				return nil
			}
			ct, ok := w.classifier.Classify(path)
			if !ok || ct == content.TypePackMeta || !parse.Parseable(ct) || !ct.IsGraphNode() {
				return nil
			}
			select {
			case tasks <- task{path: path, ct: ct, packID: packID, packMarketplaces: marketplaces}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) parsePackMetadata(repoRoot, packDir, packID string, res *Result, mu *sync.Mutex) []content.Marketplace {
	metaPath := filepath.Join(packDir, "pack_metadata.json")
	parsed, diag := parse.Parse(repoRoot, metaPath, content.TypePackMeta, packID, nil)
	mu.Lock()
	defer mu.Unlock()
	if diag != nil {
		res.Diagnostics = append(res.Diagnostics, diag)
		return nil
	}
	res.Nodes.Add(parsed.Node)
	res.Relationships.Add(parsed.Relationships...)
	return parsed.Node.Marketplaces
}

// runTask parses one file and commits its output under the lock.
func (w *Walker) runTask(repoRoot string, tk task, res *Result, mu *sync.Mutex) {
	parsed, diag := parse.Parse(repoRoot, tk.path, tk.ct, tk.packID, tk.packMarketplaces)

	mu.Lock()
	defer mu.Unlock()
	if diag != nil {
		res.Diagnostics = append(res.Diagnostics, diag)
		return
	}
	res.Nodes.Add(parsed.Node)
	res.Nodes.Add(parsed.Extra...)
	res.Relationships.Add(parsed.Relationships...)

	// Every content item belongs to exactly one pack.
	if parsed.Node.Type.IsContentItem() {
		res.Relationships.Add(&content.Relationship{
			Type:   content.RelInPack,
			Source: parsed.Node.Key(),
			Target: content.NodeKey{Type: content.TypePack, ObjectID: tk.packID},
		})
	}
}

// parseableExt keeps only artifact descriptors: yml and json. Companion
// code, images and rule sources ride along with their descriptor.
func parseableExt(path string) bool {
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		return true
	case ".json":
		return !strings.HasSuffix(path, "_schema.json")
	}
	return false
}
