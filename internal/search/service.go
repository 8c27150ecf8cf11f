package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres matching. Indexing is fire-and-forget: a failed index write never
// fails the request that triggered it.
type Service struct {
	meili    *Meili
	fallback *PgFallback
	log      zerolog.Logger
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *PgFallback, log zerolog.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, log: log.With().Str("component", "search").Logger()}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to postgres")
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		s.log.Error().Err(err).Msg("fallback search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNote pushes a note into the index in the background.
func (s *Service) IndexNote(rec NoteRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNote(rec); err != nil {
			s.log.Warn().Err(err).Int64("note_id", rec.ID).Msg("index note")
		}
	}()
}

// DeleteNote removes a note from the index in the background.
func (s *Service) DeleteNote(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNote(id); err != nil {
			s.log.Warn().Err(err).Int64("note_id", id).Msg("delete note from index")
		}
	}()
}

// DeleteNotes removes a batch of notes from the index, used after a category
// cascade.
func (s *Service) DeleteNotes(ids []int64) {
	if s.meili == nil || !s.meili.Healthy() || len(ids) == 0 {
		return
	}
	go func() {
		if err := s.meili.DeleteNotes(ids); err != nil {
			s.log.Warn().Err(err).Int("count", len(ids)).Msg("delete notes from index")
		}
	}()
}

// ReindexAll reads every note from Postgres and pushes it to Meilisearch.
// Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.meili.IndexNotes(records); err != nil {
		s.log.Error().Err(err).Msg("reindex push failed")
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
