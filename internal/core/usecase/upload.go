package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/counsel-rag/internal/core/domain"
	"github.com/kirillkom/counsel-rag/internal/core/ports"
)

var pdfMagic = []byte("%PDF-")

// UploadDocumentsUseCase validates and stores uploaded files, records them
// as pending documents and hands their ids to the ingestion queue.
type UploadDocumentsUseCase struct {
	cases          ports.CaseRepository
	documents      ports.DocumentRepository
	storage        ports.ObjectStorage
	queue          ports.MessageQueue
	maxUploadBytes int64
	log            *slog.Logger
}

func NewUploadDocumentsUseCase(
	cases ports.CaseRepository,
	documents ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	maxUploadBytes int64,
	log *slog.Logger,
) *UploadDocumentsUseCase {
	return &UploadDocumentsUseCase{
		cases:          cases,
		documents:      documents,
		storage:        storage,
		queue:          queue,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (u *UploadDocumentsUseCase) Upload(ctx context.Context, caseID string, files []ports.FileUpload) ([]domain.Document, error) {
	if _, err := u.cases.GetByID(ctx, caseID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload documents", fmt.Errorf("no files provided"))
	}
	for _, f := range files {
		if err := u.validate(f); err != nil {
			return nil, err
		}
	}

	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		doc := domain.Document{
			ID:        uuid.NewString(),
			CaseID:    caseID,
			Filename:  f.Filename,
			FileSize:  int64(len(f.Content)),
			Status:    domain.StatusPending,
			CreatedAt: time.Now().UTC(),
		}
		doc.StoragePath = fmt.Sprintf("%s/%s.pdf", caseID, doc.ID)

		if err := u.storage.Save(ctx, doc.StoragePath, bytes.NewReader(f.Content)); err != nil {
			return nil, fmt.Errorf("store %s: %w", f.Filename, err)
		}
		if err := u.documents.Create(ctx, &doc); err != nil {
			return nil, fmt.Errorf("record %s: %w", f.Filename, err)
		}

		if err := u.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
			// The row exists but no worker will ever see it; surface that
			// instead of leaving the document pending forever.
			u.log.Error("failed to enqueue document", "document_id", doc.ID, "error", err)
			msg := domain.TruncateErrorMessage(fmt.Sprintf("enqueue for processing: %v", err))
			if updErr := u.documents.UpdateStatus(ctx, doc.ID, domain.StatusFailed, msg); updErr != nil {
				u.log.Error("failed to mark document failed", "document_id", doc.ID, "error", updErr)
			}
			doc.Status = domain.StatusFailed
			doc.Error = msg
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (u *UploadDocumentsUseCase) validate(f ports.FileUpload) error {
	if int64(len(f.Content)) > u.maxUploadBytes {
		return domain.WrapError(domain.ErrInvalidInput, "upload documents",
			fmt.Errorf("%s exceeds the %d byte upload limit", f.Filename, u.maxUploadBytes))
	}
	if !bytes.HasPrefix(f.Content, pdfMagic) {
		return domain.WrapError(domain.ErrInvalidInput, "upload documents",
			fmt.Errorf("%s is not a PDF", f.Filename))
	}
	return nil
}

// RemoveDocumentUseCase deletes a document's stored file, its vector
// records and its row.
type RemoveDocumentUseCase struct {
	documents ports.DocumentRepository
	storage   ports.ObjectStorage
	vectors   ports.VectorIndex
	log       *slog.Logger
}

func NewRemoveDocumentUseCase(
	documents ports.DocumentRepository,
	storage ports.ObjectStorage,
	vectors ports.VectorIndex,
	log *slog.Logger,
) *RemoveDocumentUseCase {
	return &RemoveDocumentUseCase{documents: documents, storage: storage, vectors: vectors, log: log}
}

func (u *RemoveDocumentUseCase) Remove(ctx context.Context, caseID, documentID string) error {
	doc, err := u.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.CaseID != caseID {
		return domain.WrapError(domain.ErrNotFound, "remove document",
			fmt.Errorf("document %s not in case %s", documentID, caseID))
	}

	if err := u.storage.Remove(ctx, doc.StoragePath); err != nil {
		return fmt.Errorf("remove stored file: %w", err)
	}
	if err := u.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	if err := u.documents.Delete(ctx, documentID); err != nil {
		return err
	}
	u.log.Info("document removed", "document_id", documentID, "case_id", caseID)
	return nil
}
