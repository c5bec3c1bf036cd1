package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/session"
)

// ErrPaperNotFound is returned when no published paper has the requested id.
var ErrPaperNotFound = repository.ErrPaperNotFound

// PaperSource is where paper definitions live: the papers table or a directory of files.
type PaperSource interface {
	GetByID(ctx context.Context, id string) (*model.Paper, error)
	ListPublishedIDs(ctx context.Context) ([]string, error)
}

// PaperService serves validated papers with a Redis read-through cache in front of the source.
type PaperService struct {
	source PaperSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewPaperService creates a new PaperService. A nil rdb disables caching.
func NewPaperService(source PaperSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *PaperService {
	return &PaperService{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "paper_service").Logger(),
	}
}

// Get returns the paper with the given id, answer keys included.
func (s *PaperService) Get(ctx context.Context, id string) (*model.Paper, error) {
	if p := s.cached(ctx, id); p != nil {
		return p, nil
	}

	p, err := s.source.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPaperNotFound) {
			return nil, ErrPaperNotFound
		}
		return nil, fmt.Errorf("load paper: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, &session.InvalidPaperError{Reason: fmt.Sprintf("paper %s: %v", id, err)}
	}

	s.store(ctx, p)
	return p, nil
}

// Invalidate drops the cached copy of a paper.
func (s *PaperService) Invalidate(ctx context.Context, id string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, config.CacheKey.PaperPayloadKey(id)).Err()
}

// Prewarm loads all published papers into Redis before traffic arrives.
func (s *PaperService) Prewarm(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}

	ids, err := s.source.ListPublishedIDs(ctx)
	if err != nil {
		return fmt.Errorf("list published papers: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No published papers to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		p, err := s.source.GetByID(ctx, id)
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			s.log.Warn().Err(err).Str("paper_id", id).Msg("Failed to warm paper, skipping")
			continue
		}
		s.store(ctx, p)
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

func (s *PaperService) cached(ctx context.Context, id string) *model.Paper {
	if s.rdb == nil {
		return nil
	}
	data, err := s.rdb.Get(ctx, config.CacheKey.PaperPayloadKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("paper_id", id).Msg("Paper cache read failed")
		}
		return nil
	}

	var p model.Paper
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn().Err(err).Str("paper_id", id).Msg("Dropping undecodable cached paper")
		_ = s.Invalidate(ctx, id)
		return nil
	}
	return &p
}

func (s *PaperService) store(ctx context.Context, p *model.Paper) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.PaperPayloadKey(p.ID), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("paper_id", p.ID).Msg("Paper cache write failed")
	}
}
