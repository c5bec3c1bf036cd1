package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/service"
)

func main() {
	var dir string
	var draft bool
	flag.StringVar(&dir, "dir", "papers", "Directory of YAML/JSON paper files")
	flag.BoolVar(&draft, "draft", false, "Store papers unpublished")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	paperRepo := repository.NewPaperRepository(pool)

	files, err := repository.ListPaperFiles(dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("Failed to list paper files")
	}

	fmt.Printf("=== Seeding %d papers from %s ===\n", len(files), dir)

	var seeded []string
	for _, path := range files {
		p, err := repository.ReadPaperFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Skipping unreadable paper")
			continue
		}
		if err := paperRepo.Upsert(ctx, p, !draft); err != nil {
			log.Error().Err(err).Str("paper_id", p.ID).Msg("Failed to upsert paper")
			continue
		}
		seeded = append(seeded, p.ID)
		fmt.Printf("  %s (%d sections, %d questions)\n", p.ID, p.SectionCount(), p.QuestionCount())
	}

	// Drop cached copies so the next session start reads the new definitions.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, cached papers expire on their own")
	} else {
		defer rdb.Close()
		papers := service.NewPaperService(paperRepo, rdb, cfg.PaperCacheTTL, log)
		for _, id := range seeded {
			if err := papers.Invalidate(ctx, id); err != nil {
				log.Warn().Err(err).Str("paper_id", id).Msg("Failed to drop cached paper")
			}
		}
	}

	fmt.Printf("Seeded %d/%d papers\n", len(seeded), len(files))
}
