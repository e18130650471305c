package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

// DocumentAdminUseCase maintains the catalog and schedules re-embedding of
// changed documents.
type DocumentAdminUseCase struct {
	docs  ports.DocumentStore
	queue ports.IndexQueue
}

func NewDocumentAdminUseCase(docs ports.DocumentStore, queue ports.IndexQueue) *DocumentAdminUseCase {
	return &DocumentAdminUseCase{docs: docs, queue: queue}
}

func (uc *DocumentAdminUseCase) Upsert(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" || doc.Title == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert document", errors.New("id and title are required"))
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.Version = uuid.NewString()
	if doc.Tags == nil {
		doc.Tags = []string{}
	}

	if err := uc.docs.Upsert(ctx, doc); err != nil {
		return err
	}

	if uc.queue != nil {
		if err := uc.queue.PublishReindex(ctx, doc.ID); err != nil {
			slog.Warn("reindex_publish_failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

func (uc *DocumentAdminUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.docs.GetByID(ctx, id)
}

// IndexDocumentUseCase embeds a document and stores its vector. Runs in the
// indexer worker; the API refreshes its vector snapshot when notified.
type IndexDocumentUseCase struct {
	docs       ports.DocumentStore
	embedder   ports.Embedder
	embeddings ports.EmbeddingStore
	queue      ports.IndexQueue
}

func NewIndexDocumentUseCase(
	docs ports.DocumentStore,
	embedder ports.Embedder,
	embeddings ports.EmbeddingStore,
	queue ports.IndexQueue,
) *IndexDocumentUseCase {
	return &IndexDocumentUseCase{
		docs:       docs,
		embedder:   embedder,
		embeddings: embeddings,
		queue:      queue,
	}
}

func (uc *IndexDocumentUseCase) IndexByID(ctx context.Context, documentID string) error {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	vector, err := uc.embedder.EmbedQuery(ctx, doc.Title+"\n\n"+doc.Body)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "embed document", err)
	}
	if err := uc.embeddings.Put(ctx, doc.ID, doc.Version, vector); err != nil {
		return err
	}

	if uc.queue != nil {
		if err := uc.queue.PublishIndexed(ctx, doc.ID); err != nil {
			slog.Warn("indexed_publish_failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}
