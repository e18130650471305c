package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

// File is the on-disk seed format: an initial document corpus plus the
// authorization tuples that govern it. Loading is idempotent; documents
// upsert by id and relationship writes are merges.
type File struct {
	Documents     []Document     `yaml:"documents"`
	Relationships []Relationship `yaml:"relationships"`
}

type Document struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Body       string   `yaml:"body"`
	Sensitive  bool     `yaml:"sensitive"`
	Department string   `yaml:"department"`
	Tags       []string `yaml:"tags"`
	Author     string   `yaml:"author"`
}

type Relationship struct {
	Subject  string `yaml:"subject"`
	Relation string `yaml:"relation"`
	Object   string `yaml:"object"`
}

type Loader struct {
	docs  ports.DocumentStore
	admin ports.RelationshipAdmin
	queue ports.IndexQueue
}

func NewLoader(docs ports.DocumentStore, admin ports.RelationshipAdmin, queue ports.IndexQueue) *Loader {
	return &Loader{docs: docs, admin: admin, queue: queue}
}

func (l *Loader) LoadFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return l.Load(ctx, file)
}

func (l *Loader) Load(ctx context.Context, file File) error {
	now := time.Now().UTC()
	for _, seedDoc := range file.Documents {
		if seedDoc.ID == "" || seedDoc.Title == "" {
			return fmt.Errorf("seed document needs id and title, got id=%q", seedDoc.ID)
		}
		doc := &domain.Document{
			ID:         seedDoc.ID,
			Title:      seedDoc.Title,
			Body:       seedDoc.Body,
			Sensitive:  seedDoc.Sensitive,
			Department: seedDoc.Department,
			Tags:       seedDoc.Tags,
			Author:     seedDoc.Author,
			Version:    uuid.NewString(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := l.docs.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("seed document %s: %w", doc.ID, err)
		}
		if l.queue != nil {
			if err := l.queue.PublishReindex(ctx, doc.ID); err != nil {
				slog.Warn("seed_reindex_publish_failed", "document_id", doc.ID, "error", err)
			}
		}
	}

	if l.admin != nil {
		for _, rel := range file.Relationships {
			if rel.Subject == "" || rel.Relation == "" || rel.Object == "" {
				return fmt.Errorf("seed relationship needs subject, relation and object: %+v", rel)
			}
			if err := l.admin.AddRelationship(ctx, rel.Subject, rel.Relation, rel.Object); err != nil {
				return fmt.Errorf("seed relationship %s %s %s: %w", rel.Subject, rel.Relation, rel.Object, err)
			}
		}
	}

	slog.Info("seed_loaded", "documents", len(file.Documents), "relationships", len(file.Relationships))
	return nil
}
