// Package archive keeps a sqlite history of completed downloads.
package archive

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/smartvideo/ytdlp-bridge/bridge/config"
)

type Entity struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	db *sql.DB
}

func New(db *sql.DB) (*Service, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS archive (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			title      TEXT NOT NULL,
			source     TEXT NOT NULL,
			filename   TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return nil, err
	}

	return &Service{db: db}, nil
}

func (s *Service) Archive(ctx context.Context, e *Entity) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO archive (title, source, filename, created_at) VALUES (?, ?, ?, ?)",
		e.Title, e.Source, e.Filename, e.CreatedAt,
	)
	return err
}

func (s *Service) All(ctx context.Context) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, source, filename, created_at FROM archive ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entity, 0)

	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Title, &e.Source, &e.Filename, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Archiver decouples archiving from the event path: completions are
// published to a channel and written by a single consumer.
type Archiver struct {
	ch      chan *Entity
	service *Service
}

func NewArchiver(service *Service) *Archiver {
	return &Archiver{
		ch:      make(chan *Entity, 1),
		service: service,
	}
}

// Publish enqueues a completed download, if auto archiving is enabled.
// It never blocks the event path: with the consumer stopped or behind,
// the entry is dropped with a warning.
func (a *Archiver) Publish(e *Entity) {
	if !config.Instance().AutoArchive {
		return
	}

	select {
	case a.ch <- e:
	default:
		slog.Warn("archive queue full, dropping entry", slog.String("title", e.Title))
	}
}

// Run consumes published entries until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.ch:
			slog.Info("archiving completed download",
				slog.String("title", e.Title),
				slog.String("source", e.Source),
			)

			if err := a.service.Archive(context.Background(), e); err != nil {
				slog.Error("failed archiving download", slog.Any("err", err))
			}
		}
	}
}
