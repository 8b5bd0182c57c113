package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"engram/internal/observability"
	"engram/internal/tracing"

	"github.com/rs/zerolog"
)

// Config carries everything a Service needs. Zero values fall back to the
// documented defaults.
type Config struct {
	// StoragePath is the store file location. Required.
	StoragePath string

	// ChunkSize and ChunkOverlap are in approximate tokens.
	ChunkSize    int
	ChunkOverlap int

	// Provider selects the embedding backend: "local", "openai" or
	// "gemini". Empty means local.
	Provider string
	// Model overrides the provider's default model name.
	Model string
	// APIKey authenticates remote providers.
	APIKey string
	// Dimension is the fixed vector width. Defaults to DefaultDimension.
	Dimension int

	// VectorWeight and TextWeight blend the hybrid score. Both zero means
	// the 0.7/0.3 defaults.
	VectorWeight float64
	TextWeight   float64

	// CacheTTL bounds embedding cache entry age during maintenance.
	// Zero disables pruning.
	CacheTTL time.Duration

	Logger zerolog.Logger
}

// Service is the top-level memory API: chunk, embed, store, search, dedup,
// archive, reindex. One Service owns one store file.
type Service struct {
	cfg      Config
	store    *Store
	chunker  *Chunker
	embedder *Embedder
	dedup    *Deduplicator
	search   *SearchEngine
	events   *EventBus
	watcher  *Watcher
	maint    *Maintenance
	local    *LocalProvider
	log      zerolog.Logger
}

// New builds a Service from cfg, opening the store and wiring the embedding
// pipeline. The fallback local model is always constructed, even when the
// primary provider is remote.
func New(cfg Config) (*Service, error) {
	if cfg.StoragePath == "" {
		return nil, errors.New("storage path is required")
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.VectorWeight == 0 && cfg.TextWeight == 0 {
		cfg.VectorWeight = DefaultVectorWeight
		cfg.TextWeight = DefaultTextWeight
	}

	log := cfg.Logger.With().Str("component", "memory").Logger()

	store, err := OpenStore(cfg.StoragePath, cfg.Dimension, log)
	if err != nil {
		return nil, err
	}

	local := NewLocalProvider(cfg.Dimension)
	primary, err := buildProvider(cfg, local)
	if err != nil {
		store.Close()
		return nil, err
	}

	cache, err := newEmbeddingCache(store.db, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initialize embedding cache: %w", err)
	}

	events := NewEventBus()
	embedder := NewEmbedder(primary, local, cache, events, log)

	svc := &Service{
		cfg:      cfg,
		store:    store,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder: embedder,
		dedup:    NewDeduplicator(store, embedder, log),
		search:   NewSearchEngine(store, store, store, log),
		events:   events,
		local:    local,
		log:      log,
	}
	svc.watcher = newWatcher(svc, log)

	observability.EnsureRegistered()
	events.Emit(Event{Type: EventInitialized})
	log.Info().
		Str("storage", cfg.StoragePath).
		Str("provider", primary.Model()).
		Int("dimension", cfg.Dimension).
		Msg("Memory service initialized")

	return svc, nil
}

func buildProvider(cfg Config, local *LocalProvider) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		return local, nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("openai provider requires an API key")
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Dimension), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, errors.New("gemini provider requires an API key")
		}
		return NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// Subscribe registers an event handler and returns its cancel func.
func (s *Service) Subscribe(fn func(Event)) func() {
	return s.events.Subscribe(fn)
}

// indexChunks is the shared ingestion pipeline: dedup check, embed, store.
// Returns the number of chunks actually inserted.
func (s *Service) indexChunks(ctx context.Context, source Source, sourceID string, texts []string, metadata map[string]interface{}) (int, error) {
	start := time.Now()
	inserted := 0
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		decision := s.dedup.Check(ctx, source, sourceID, text)
		if decision.Duplicate {
			observability.RecordDedupSkip()
			continue
		}

		emb := decision.Embedding
		if emb == nil {
			fresh, err := s.embedder.Embed(ctx, text)
			if err != nil {
				return inserted, fmt.Errorf("embed chunk: %w", err)
			}
			emb = &fresh
		}

		if _, err := s.store.InsertChunk(ctx, source, sourceID, text, metadata, emb.Model, emb.Vector); err != nil {
			return inserted, fmt.Errorf("store chunk: %w", err)
		}
		inserted++
	}

	// Completion fires even when every chunk was deduplicated.
	s.events.Emit(Event{
		Type:     EventIndexed,
		Source:   source,
		SourceID: sourceID,
		Count:    inserted,
	})
	observability.ObserveIngest(time.Since(start))
	s.refreshChunkGauge(ctx)
	return inserted, nil
}

// IndexText chunks and stores a block of free text under (source, sourceID).
// An empty source defaults to SourceText.
func (s *Service) IndexText(ctx context.Context, source Source, sourceID, text string, metadata map[string]interface{}) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "memory.index_text")
	defer span.End()

	if source == "" {
		source = SourceText
	}
	chunks := s.chunker.ChunkText(text)
	return s.indexChunks(ctx, source, sourceID, chunks, metadata)
}

// IndexFile reads, chunks and stores a file, picking the chunking strategy
// from the extension. A missing file indexes zero chunks without error.
func (s *Service) IndexFile(ctx context.Context, path string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "memory.index_file")
	defer span.End()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug().Str("path", path).Msg("Skipping missing file")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	chunks := s.chunker.ChunkForExtension(filepath.Ext(path), string(data))
	metadata := map[string]interface{}{"path": path}
	return s.indexChunks(ctx, SourceFile, path, chunks, metadata)
}

// IndexConversation windows a message transcript into overlapping chunks and
// stores them under the conversation id.
func (s *Service) IndexConversation(ctx context.Context, conversationID string, messages []Message) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "memory.index_conversation")
	defer span.End()

	if len(messages) == 0 {
		return 0, nil
	}

	chunks := s.chunker.ChunkConversation(messages)
	metadata := map[string]interface{}{
		"firstMessageAt": messages[0].Timestamp.UTC().Format(time.RFC3339),
		"lastMessageAt":  messages[len(messages)-1].Timestamp.UTC().Format(time.RFC3339),
	}
	return s.indexChunks(ctx, SourceConversation, conversationID, chunks, metadata)
}

// Search runs a hybrid query. Defaults: limit 5, min score 0.3, configured
// weight blend.
func (s *Service) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "memory.search")
	defer span.End()

	if strings.TrimSpace(opts.Query) == "" {
		return nil, errors.New("search query is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	if opts.VectorWeight == 0 && opts.TextWeight == 0 {
		opts.VectorWeight = s.cfg.VectorWeight
		opts.TextWeight = s.cfg.TextWeight
	}

	start := time.Now()
	emb, err := s.embedder.Embed(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.search.Search(ctx, emb.Vector, opts)
	if err != nil {
		return nil, err
	}
	observability.ObserveSearch(time.Since(start))

	s.log.Debug().
		Str("query", opts.Query).
		Int("results", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("Hybrid search completed")
	return results, nil
}

// DeleteBySource removes everything stored under (source, sourceID).
func (s *Service) DeleteBySource(ctx context.Context, source Source, sourceID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "memory.delete_by_source")
	defer span.End()

	n, err := s.store.DeleteBySource(ctx, source, sourceID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.events.Emit(Event{
			Type:     EventDeleted,
			Source:   source,
			SourceID: sourceID,
			Count:    n,
		})
	}
	s.refreshChunkGauge(ctx)
	return n, nil
}

// Clear wipes the entire store including the embedding cache.
func (s *Service) Clear(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "memory.clear")
	defer span.End()

	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.embedder.cache.Reset()
	s.events.Emit(Event{Type: EventCleared})
	s.refreshChunkGauge(ctx)
	s.log.Info().Msg("Memory store cleared")
	return nil
}

// Stats reports store counts, file size and cache hit counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.CacheHits, st.CacheMisses = s.embedder.cache.Counters()
	return st, nil
}

// ArchiveConversation indexes a closing transcript through the ordinary
// conversation pipeline, with every inserted chunk tagged as archived.
// Archived chunks stay searchable.
func (s *Service) ArchiveConversation(ctx context.Context, conversationID string, messages []Message) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "memory.archive_conversation")
	defer span.End()

	if len(messages) == 0 {
		return 0, nil
	}

	chunks := s.chunker.ChunkConversation(messages)
	metadata := map[string]interface{}{
		"archived":       true,
		"archivedAt":     time.Now().UTC().Format(time.RFC3339),
		"firstMessageAt": messages[0].Timestamp.UTC().Format(time.RFC3339),
		"lastMessageAt":  messages[len(messages)-1].Timestamp.UTC().Format(time.RFC3339),
	}
	n, err := s.indexChunks(ctx, SourceConversation, conversationID, chunks, metadata)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.events.Emit(Event{
			Type:     EventArchived,
			Source:   SourceConversation,
			SourceID: conversationID,
			Count:    n,
		})
	}
	return n, nil
}

// MarkArchived flags an already-indexed conversation's chunks as archived
// without re-ingesting anything.
func (s *Service) MarkArchived(ctx context.Context, conversationID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "memory.mark_archived")
	defer span.End()

	n, err := s.store.MarkConversationArchived(ctx, conversationID, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.events.Emit(Event{
			Type:     EventArchived,
			Source:   SourceConversation,
			SourceID: conversationID,
			Count:    n,
		})
	}
	return n, nil
}

// ArchivedConversations lists archived conversations with chunk counts.
func (s *Service) ArchivedConversations(ctx context.Context) ([]ArchivedConversation, error) {
	return s.store.ArchivedConversations(ctx)
}

// ReindexAll re-embeds every stored chunk with the current provider and
// replaces its vector entry. Used after switching models or dimensions
// within the same width.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "memory.reindex_all")
	defer span.End()

	start := time.Now()
	refs, err := s.store.AllChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}

	done := 0
	for _, ref := range refs {
		emb, err := s.embedder.Embed(ctx, ref.Content)
		if err != nil {
			return done, fmt.Errorf("re-embed chunk %d: %w", ref.ID, err)
		}
		if err := s.store.UpdateEmbedding(ctx, ref.ID, ref.Content, emb.Model, emb.Vector); err != nil {
			return done, fmt.Errorf("update chunk %d: %w", ref.ID, err)
		}
		done++
	}

	observability.ObserveReindex(time.Since(start))
	s.events.Emit(Event{Type: EventReindexed, Count: done})
	s.log.Info().Int("chunks", done).Dur("elapsed", time.Since(start)).Msg("Reindex completed")
	return done, nil
}

// RefreshFile drops a file's chunks and indexes the current content. Used by
// the watcher and safe to call directly.
func (s *Service) RefreshFile(ctx context.Context, path string) (int, error) {
	if _, err := s.store.DeleteBySource(ctx, SourceFile, path); err != nil {
		return 0, fmt.Errorf("drop stale file chunks: %w", err)
	}
	return s.IndexFile(ctx, path)
}

// Watch registers a path for automatic reindexing on change.
func (s *Service) Watch(path string) error {
	return s.watcher.Add(path)
}

// Unwatch removes a watched path.
func (s *Service) Unwatch(path string) error {
	return s.watcher.Remove(path)
}

// StartMaintenance begins periodic cache pruning on the given cron schedule.
func (s *Service) StartMaintenance(schedule string) error {
	if s.maint != nil {
		return errors.New("maintenance already running")
	}
	m, err := newMaintenance(s, schedule, s.log)
	if err != nil {
		return err
	}
	s.maint = m
	m.Start()
	return nil
}

func (s *Service) refreshChunkGauge(ctx context.Context) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return
	}
	observability.SetChunksTotal(st.TotalChunks)
}

// Close stops the watcher and maintenance loop and releases the store.
func (s *Service) Close() error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.maint != nil {
		s.maint.Stop()
	}
	s.embedder.cache.Close()
	if err := s.local.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Closing local model failed")
	}
	return s.store.Close()
}
