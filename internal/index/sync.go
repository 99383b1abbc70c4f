package index

import (
	"log/slog"
	"strings"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/rewrite"
	"github.com/starford/ansuz/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed Markdown files are parsed and upserted
//   - files removed from disk are deleted from the index
//
// Base definitions are not full-text indexed; the transform pipeline owns
// them. They are skipped here.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if !strings.HasSuffix(m.Path, ".md") {
			continue
		}
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile parses data and upserts it into the DB. Link targets come from
// the rewriter so the index sees the same references the rendered output does.
func indexFile(db *DB, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	cs := checksum.Sum(data)

	tr := rewrite.Transform(res.Body)
	links := make([]string, 0, len(tr.Links))
	seen := make(map[string]struct{}, len(tr.Links))
	for _, ref := range tr.Links {
		if _, dup := seen[ref.Target]; dup {
			continue
		}
		seen[ref.Target] = struct{}{}
		links = append(links, ref.Target)
	}

	row := NoteRow{
		Path:     path,
		Title:    res.Title,
		Checksum: cs,
		Tags:     res.Tags,
	}
	return db.UpsertNote(row, res.Body, links)
}
