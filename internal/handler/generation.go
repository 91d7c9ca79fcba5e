package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/promptpix/promptpix/internal/auth"
	"github.com/promptpix/promptpix/internal/handler/dto"
	"github.com/promptpix/promptpix/internal/middleware"
	"github.com/promptpix/promptpix/internal/relay"
)

// Client-facing relay messages.
const (
	msgImageGenerated  = "Image Generated"
	msgNoCredit        = "No Credit Balance"
	msgMissingDetails  = "Missing Details"
	msgGenerationError = "Image generation failed"
	msgInternalError   = "Internal Server Error"
)

// ImageGenerator runs a metered generation.
type ImageGenerator interface {
	Generate(ctx context.Context, userID, prompt string) (relay.Result, error)
}

// GenerationHandler serves the image generation endpoint.
type GenerationHandler struct {
	relay  ImageGenerator
	logger *slog.Logger
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(g ImageGenerator, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{relay: g, logger: logger}
}

// GenerateImage handles POST /api/image/generate-image.
func (h *GenerationHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := dto.Validate(&req); err != nil {
		if dto.IsMissing(&req) {
			writeError(w, http.StatusBadRequest, msgMissingDetails)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	result, err := h.relay.Generate(r.Context(), userID, req.Prompt)
	if err != nil {
		h.writeRelayError(w, r, userID, err)
		return
	}

	if !result.Debited {
		h.logger.Error("image delivered without debit",
			"user_id", userID,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}

	balance := result.RemainingCredit
	writeJSON(w, http.StatusOK, dto.GenerateImageResponse{
		Success:       true,
		Message:       msgImageGenerated,
		CreditBalance: &balance,
		ResultImage:   relay.EncodeDataURI(relay.DefaultImageMIME, result.Image),
	})
}

func (h *GenerationHandler) writeRelayError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	var rerr *relay.Error
	if !errors.As(err, &rerr) {
		rerr = &relay.Error{Kind: relay.KindFault, Err: err}
	}

	switch rerr.Kind {
	case relay.KindInvalidRequest:
		writeError(w, http.StatusBadRequest, msgMissingDetails)
	case relay.KindInsufficientCredit:
		balance := rerr.Balance
		writeJSON(w, http.StatusPaymentRequired, dto.GenerateImageResponse{
			Success:       false,
			Message:       msgNoCredit,
			CreditBalance: &balance,
		})
	case relay.KindProvider:
		writeError(w, http.StatusBadGateway, msgGenerationError)
	default:
		h.logger.Error("generation failed",
			"user_id", userID,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}
