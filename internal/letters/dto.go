package letters

import (
	"time"

	"letters-backend/internal/progress"
)

// BatchResponse is the API shape of an import batch.
type BatchResponse struct {
	ID              string             `json:"id"`
	ConfigID        string             `json:"configId,omitempty"`
	TemplateID      string             `json:"templateId,omitempty"`
	State           State              `json:"state"`
	StateLabel      string             `json:"stateLabel"`
	ImportCompleted bool               `json:"importCompleted"`
	DocumentCount   int                `json:"documentCount"`
	CreatedBy       string             `json:"createdBy,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
	Progress        *progress.Progress `json:"progress,omitempty"`
}

// LineResponse is the API shape of an import line.
type LineResponse struct {
	ID          string    `json:"id"`
	PartnerID   *int64    `json:"partnerId"`
	ChildID     *int64    `json:"childId"`
	PartnerCode string    `json:"partnerCode"`
	ChildCode   string    `json:"childCode"`
	TemplateID  string    `json:"templateId,omitempty"`
	Status      string    `json:"status"`
	FileName    string    `json:"fileName"`
	DocumentKey string    `json:"documentKey"`
	PreviewKey  string    `json:"previewKey,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LetterResponse is the API shape of a saved letter.
type LetterResponse struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batchId"`
	PartnerID   *int64    `json:"partnerId"`
	ChildID     *int64    `json:"childId"`
	TemplateID  string    `json:"templateId,omitempty"`
	FileName    string    `json:"fileName"`
	DocumentKey string    `json:"documentKey"`
	PreviewKey  string    `json:"previewKey,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateBatchRequest is the body of POST /imports.
type CreateBatchRequest struct {
	ConfigID string `json:"configId"`
}

// RegisterDocumentRequest is the body of POST /imports/:id/documents/from-s3.
type RegisterDocumentRequest struct {
	S3Key            string `json:"s3Key"`
	OriginalFileName string `json:"originalFileName"`
	ContentType      string `json:"contentType"`
	SizeBytes        int64  `json:"sizeBytes"`
}

// UpdateLineRequest is the body of PATCH /imports/:id/lines/:lineId. An
// explicit JSON null clears a reference; an absent field leaves it unchanged.
type UpdateLineRequest struct {
	PartnerID OptionalID `json:"partnerId"`
	ChildID   OptionalID `json:"childId"`
	Status    *string    `json:"status"`
}

// ToBatchResponse maps a View to its API shape.
func ToBatchResponse(v View) BatchResponse {
	return BatchResponse{
		ID:              v.ID,
		ConfigID:        v.ConfigID,
		TemplateID:      v.TemplateID,
		State:           v.State,
		StateLabel:      v.State.Label(),
		ImportCompleted: v.ImportCompleted,
		DocumentCount:   v.FileCount,
		CreatedBy:       v.CreatedBy,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
		CompletedAt:     v.CompletedAt,
		Progress:        v.Progress,
	}
}

// ToLineResponse maps a Line to its API shape.
func ToLineResponse(l Line) LineResponse {
	return LineResponse{
		ID:          l.ID,
		PartnerID:   l.PartnerID,
		ChildID:     l.ChildID,
		PartnerCode: l.PartnerCode,
		ChildCode:   l.ChildCode,
		TemplateID:  l.TemplateID,
		Status:      l.Status,
		FileName:    l.FileName,
		DocumentKey: l.DocumentKey,
		PreviewKey:  l.PreviewKey,
		CreatedAt:   l.CreatedAt,
	}
}

// ToLetterResponse maps a Letter to its API shape.
func ToLetterResponse(l Letter) LetterResponse {
	return LetterResponse{
		ID:          l.ID,
		BatchID:     l.BatchID,
		PartnerID:   l.PartnerID,
		ChildID:     l.ChildID,
		TemplateID:  l.TemplateID,
		FileName:    l.FileName,
		DocumentKey: l.DocumentKey,
		PreviewKey:  l.PreviewKey,
		CreatedAt:   l.CreatedAt,
	}
}
