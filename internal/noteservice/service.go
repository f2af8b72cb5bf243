// Package noteservice coordinates import, reindex and graph reads for the
// transports (REST, MCP, CLI, watcher).
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/importer"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/reindex"
	"github.com/starford/notegraph/internal/sse"
	"github.com/starford/notegraph/internal/storage"
)

// Store is the persistence the service needs; *index.DB satisfies it.
type Store interface {
	index.EngineStore
	index.GraphReader
	index.NoteRepository
}

// Publisher receives change notifications; *sse.Broker satisfies it.
type Publisher interface {
	Publish(event sse.Event)
	PublishNoteEvent(kind, path string)
}

// NoteDetail is a note with its outgoing links and backlinks.
type NoteDetail struct {
	models.Note
	Links     []models.Link    `json:"links"`
	Backlinks []graph.Backlink `json:"backlinks"`
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sends import and reindex events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithEngineOptions passes options to the reindex engine.
func WithEngineOptions(opts ...reindex.Option) Option {
	return func(s *Service) { s.engineOpts = append(s.engineOpts, opts...) }
}

// Service is the application facade.
type Service struct {
	store    Store
	importer *importer.Importer
	engine   *reindex.Engine
	graph    *graph.Builder
	pub      Publisher
	logger   *slog.Logger

	engineOpts []reindex.Option

	// reindexMu keeps at most one batch in flight; flights shares the
	// result of a running batch with callers asking for the same mode.
	reindexMu sync.Mutex
	flights   singleflight.Group
}

// NewService wires the importer, engine and graph builder over one store.
func NewService(store Store, files storage.Provider, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger}
	for _, o := range opts {
		o(s)
	}
	s.importer = importer.New(store, files, logger)
	s.engine = reindex.New(store, logger, s.engineOpts...)
	s.graph = graph.NewBuilder(store)
	return s
}

// Reindex runs one batch; full forces every note to be treated as changed.
// Concurrent calls for the same mode join the batch already running, other
// calls wait for it to finish. The batch is not cancelled with ctx.
func (s *Service) Reindex(ctx context.Context, full bool) (models.ReindexResult, error) {
	mode := models.ModeIncremental
	if full {
		mode = models.ModeFull
	}
	v, err, shared := s.flights.Do(mode, func() (any, error) {
		s.reindexMu.Lock()
		defer s.reindexMu.Unlock()
		return s.engine.Run(context.WithoutCancel(ctx), mode)
	})
	if shared {
		s.logger.Debug("reindex: joined running batch", slog.String("mode", mode))
	}
	res, _ := v.(models.ReindexResult)
	if err != nil {
		if !shared {
			s.publish(sse.NewEvent(sse.TypeReindexFailed, map[string]string{"mode": mode, "error": err.Error()}))
		}
		return res, err
	}
	if !shared {
		s.publish(sse.NewEvent(sse.TypeReindexFinished, res))
	}
	return res, nil
}

// Import imports entries and publishes a note event per change.
func (s *Service) Import(ctx context.Context, entries []importer.Entry) []models.ImportResult {
	results := s.importer.Import(ctx, entries)
	s.publishImports(results)
	return results
}

// ScanVault imports the whole vault, optionally pruning vanished notes.
func (s *Service) ScanVault(ctx context.Context, prune bool) ([]models.ImportResult, error) {
	results, err := s.importer.ScanVault(ctx, prune)
	s.publishImports(results)
	return results, err
}

// Sync brings the index up to date with the vault: a pruning scan followed
// by an incremental reindex when anything changed.
func (s *Service) Sync(ctx context.Context) (*models.ReindexResult, error) {
	results, err := s.ScanVault(ctx, true)
	if err != nil {
		return nil, err
	}
	if !importer.Changed(results) {
		return nil, nil
	}
	res, err := s.Reindex(ctx, false)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListNotes returns a page of notes.
func (s *Service) ListNotes(ctx context.Context, f models.NoteFilter) ([]models.NoteSummary, int, error) {
	return s.store.ListNotes(ctx, f)
}

// GetNote returns a note by vault path with its links and backlinks.
func (s *Service) GetNote(ctx context.Context, path string) (*NoteDetail, error) {
	n, err := s.store.GetNoteByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, n)
}

// GetNoteByID returns a note by id with its links and backlinks.
func (s *Service) GetNoteByID(ctx context.Context, id string) (*NoteDetail, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, n)
}

func (s *Service) detail(ctx context.Context, n *models.Note) (*NoteDetail, error) {
	links, err := s.store.LinksFrom(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("noteservice: links: %w", err)
	}
	backlinks, err := s.graph.Backlinks(ctx, n.Title)
	if err != nil {
		return nil, err
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return &NoteDetail{Note: *n, Links: links, Backlinks: backlinks}, nil
}

// Backlinks returns the notes linking to title.
func (s *Service) Backlinks(ctx context.Context, title string) ([]graph.Backlink, error) {
	return s.graph.Backlinks(ctx, title)
}

// Graph returns the node/link graph.
func (s *Service) Graph(ctx context.Context) (*graph.Graph, error) {
	return s.graph.Graph(ctx)
}

// Search runs a full-text query over titles and content.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.store.Search(ctx, query, limit)
}

// Runs returns the newest index runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]models.IndexRun, error) {
	return s.engine.Ledger().Latest(ctx, limit)
}

// LastSuccessfulRun returns the run whose graph state is authoritative, or nil.
func (s *Service) LastSuccessfulRun(ctx context.Context) (*models.IndexRun, error) {
	return s.engine.Ledger().LastSuccess(ctx)
}

func (s *Service) publishImports(results []models.ImportResult) {
	if s.pub == nil {
		return
	}
	for _, r := range results {
		s.pub.PublishNoteEvent(r.Status, r.Path)
	}
}

func (s *Service) publish(ev sse.Event) {
	if s.pub != nil {
		s.pub.Publish(ev)
	}
}
