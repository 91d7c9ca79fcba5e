// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/promptpix/promptpix/internal/model"
)

// MaxPromptLength bounds prompts accepted by the generate endpoint.
const MaxPromptLength = 1000

// GenerateImageRequest is the body of POST /api/image/generate-image.
type GenerateImageRequest struct {
	Prompt string `json:"prompt" validate:"required,max=1000"`
}

// GenerateImageResponse is returned by the generate endpoint. CreditBalance
// is a pointer so a zero balance is still serialized.
type GenerateImageResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	CreditBalance *int64 `json:"creditBalance,omitempty"`
	ResultImage   string `json:"resultImage,omitempty"`
}

// RegisterRequest is the body of POST /api/user/register.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest is the body of POST /api/user/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserSummary is the public view of a user.
type UserSummary struct {
	Name string `json:"name"`
}

// AuthResponse is returned on register and login.
type AuthResponse struct {
	Success   bool        `json:"success"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      UserSummary `json:"user"`
}

// CreditsResponse is returned by GET /api/user/credits.
type CreditsResponse struct {
	Success bool        `json:"success"`
	Credits int64       `json:"credits"`
	User    UserSummary `json:"user"`
}

// PurchaseRequest is the body of POST /api/user/purchase.
type PurchaseRequest struct {
	PlanID string `json:"planId" validate:"required,oneof=basic advanced business"`
}

// TransactionResponse is a transaction in API responses.
type TransactionResponse struct {
	ID      string    `json:"id"`
	Plan    string    `json:"plan"`
	Credits int64     `json:"credits"`
	Amount  int64     `json:"amount"`
	Payment bool      `json:"payment"`
	Date    time.Time `json:"date"`
}

// PurchaseResponse is returned by POST /api/user/purchase.
type PurchaseResponse struct {
	Success     bool                `json:"success"`
	Transaction TransactionResponse `json:"transaction"`
}

// TransactionListResponse is returned by GET /api/user/transactions.
type TransactionListResponse struct {
	Success      bool                  `json:"success"`
	Transactions []TransactionResponse `json:"transactions"`
}

// PlansResponse is returned by GET /api/user/plans.
type PlansResponse struct {
	Success bool         `json:"success"`
	Plans   []model.Plan `json:"plans"`
}

// MessageResponse is the generic success/failure envelope.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ToTransactionResponse converts a model.Transaction.
func ToTransactionResponse(tx *model.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:      tx.ID,
		Plan:    tx.Plan,
		Credits: tx.Credits,
		Amount:  tx.Amount,
		Payment: tx.Payment,
		Date:    tx.Date,
	}
}

// ToTransactionList converts a slice, never returning nil.
func ToTransactionList(txs []*model.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, ToTransactionResponse(tx))
	}
	return out
}
