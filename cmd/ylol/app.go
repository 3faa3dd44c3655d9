package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ylol-app/ylol/internal/adapters/linkpreview"
	"github.com/ylol-app/ylol/internal/adapters/llm"
	"github.com/ylol-app/ylol/internal/adapters/media"
	firestorestore "github.com/ylol-app/ylol/internal/adapters/storage/firestore"
	memstore "github.com/ylol-app/ylol/internal/adapters/storage/memory"
	sqlitestore "github.com/ylol-app/ylol/internal/adapters/storage/sqlite"
	"github.com/ylol-app/ylol/internal/app/conversation"
	"github.com/ylol-app/ylol/internal/config"
	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

// app holds the wired adapters and the conversation built on them.
type app struct {
	conv  *conversation.Conversation
	store domain.SessionStore

	closers []func() error
}

func newStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.SessionStore, func() error, error) {
	switch cfg.StorageBackend {
	case "firestore":
		log.Info("using Firestore storage", "project", cfg.GCPProjectID)
		s, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing Firestore store: %w", err)
		}
		return s, s.Close, nil
	case "sqlite":
		log.Info("using SQLite storage", "path", cfg.SQLitePath)
		s, err := sqlitestore.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing SQLite store: %w", err)
		}
		return s, s.Close, nil
	default:
		log.Info("using in-memory storage")
		return memstore.NewSessionStore(), nil, nil
	}
}

func newApp(ctx context.Context, cfg *config.Config, observer conversation.Observer) (*app, error) {
	log := observability.WithFields("component", "wiring", "user_id", cfg.UserID)
	a := &app{}

	var (
		responder domain.ResponseService
		err       error
	)
	if cfg.UseMockLLM {
		log.Info("using mock response service")
		responder = llm.NewMockLLM()
	} else {
		log.Info("using Gemini response service", "model", cfg.ModelName, "location", cfg.GCPLocation)
		responder, err = llm.NewGeminiClient(ctx, llm.GeminiConfig{
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPLocation,
			Model:    cfg.ModelName,
		})
		if err != nil {
			return nil, err
		}
	}

	store, closeStore, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	var uploader domain.MediaUploader
	switch cfg.MediaBackend {
	case "gcs":
		log.Info("using GCS media uploads", "bucket", cfg.MediaBucket)
		gcs, err := media.NewGCSUploader(ctx, cfg.MediaBucket)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("initializing GCS uploader: %w", err)
		}
		uploader = gcs
		a.closers = append(a.closers, gcs.Close)
	default:
		uploader = media.NewMemoryUploader()
	}

	var previewer domain.LinkPreviewer
	if cfg.LinkPreviews {
		previewer = linkpreview.NewFetcher(nil)
	}

	mode, err := domain.ParseMode(cfg.DefaultMode)
	if err != nil {
		a.close()
		return nil, err
	}

	a.conv, err = conversation.New(conversation.Deps{
		Responder: responder,
		Store:     store,
		Uploader:  uploader,
		Previewer: previewer,
		Logger:    observability.Logger(),
		Observer:  observer,
	}, conversation.Options{
		UserID:        domain.UserID(cfg.UserID),
		Mode:          mode,
		ContextWindow: cfg.ContextWindow,
		Timings: conversation.Timings{
			BaseDelayMin: cfg.Delivery.BaseDelayMin,
			BaseDelayMax: cfg.Delivery.BaseDelayMax,
			PerChar:      cfg.Delivery.PerChar,
			Settle:       cfg.Delivery.Settle,
		},
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// shutdown flushes the conversation and releases the adapters.
func (a *app) shutdown(ctx context.Context) error {
	if a.conv != nil {
		a.conv.Close(ctx)
	}
	return a.close()
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
