package ports

import (
	"context"
	"time"

	"github.com/tripboard/core/internal/domain/entities"
)

// DocumentService interface for document store operations
type DocumentService interface {
	LoadDocument(ctx context.Context) *entities.Document
	SaveDocument(ctx context.Context, doc *entities.Document, reason string) (*entities.SaveResult, error)
	ListBackups(ctx context.Context) ([]entities.Backup, error)
	RestoreBackup(ctx context.Context, filename string) (*entities.Document, error)
	Status(ctx context.Context) entities.StoreStatus
}

// AuthService interface for API token operations
type AuthService interface {
	IssueToken(subject string, ttl time.Duration) (*TokenResponse, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Request/Response Types

type SaveDocumentRequest struct {
	Document     *entities.Document `json:"document" validate:"required"`
	ChangeReason string             `json:"change_reason" validate:"omitempty,max=200"`
}

type SaveDocumentResponse struct {
	Message string               `json:"message"`
	Result  *entities.SaveResult `json:"result"`
}

type RestoreBackupResponse struct {
	Message  string             `json:"message"`
	Filename string             `json:"filename"`
	Document *entities.Document `json:"document"`
}

type BackupListResponse struct {
	Data  []entities.Backup `json:"data"`
	Total int               `json:"total"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Claims struct {
	Subject string `json:"sub"`
	TokenID string `json:"jti"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
