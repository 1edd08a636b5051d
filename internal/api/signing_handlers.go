package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/split-wallet/split-wallet/internal/logger"
	"github.com/split-wallet/split-wallet/internal/signer"
	apperrors "github.com/split-wallet/split-wallet/pkg/errors"
)

const lamportsPerSOL = 1_000_000_000

type sponsorAddressResponse struct {
	Success bool   `json:"success"`
	Address string `json:"address"`
}

type sponsorBalanceResponse struct {
	Success  bool    `json:"success"`
	Lamports uint64  `json:"lamports"`
	SOL      float64 `json:"sol"`
}

type signAndSubmitRequest struct {
	SerializedTransaction string `json:"serialized_transaction"`
	DeclaredNetwork       string `json:"declared_network"`
	ClientTimestamp       int64  `json:"client_timestamp,omitempty"`
}

type signAndSubmitResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Network   string `json:"network,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func (s *Server) handleSponsorAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, apperrors.New(apperrors.ErrCodeBadRequest, "Method not allowed", http.StatusMethodNotAllowed))
		return
	}
	if s.signing == nil {
		s.writeError(w, apperrors.ErrSponsorUnconfigured)
		return
	}

	s.writeJSON(w, http.StatusOK, sponsorAddressResponse{
		Success: true,
		Address: s.signing.SponsorAddress().String(),
	})
}

func (s *Server) handleSponsorBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, apperrors.New(apperrors.ErrCodeBadRequest, "Method not allowed", http.StatusMethodNotAllowed))
		return
	}
	if s.signing == nil {
		s.writeError(w, apperrors.ErrSponsorUnconfigured)
		return
	}

	lamports, err := s.signing.SponsorBalance(r.Context())
	if err != nil {
		logger.Error(r.Context(), "failed to fetch sponsor balance", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}

	s.writeJSON(w, http.StatusOK, sponsorBalanceResponse{
		Success:  true,
		Lamports: lamports,
		SOL:      float64(lamports) / lamportsPerSOL,
	})
}

func (s *Server) handleSignAndSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, apperrors.New(apperrors.ErrCodeBadRequest, "Method not allowed", http.StatusMethodNotAllowed))
		return
	}
	if s.signing == nil {
		s.writeError(w, apperrors.ErrSponsorUnconfigured)
		return
	}

	var body signAndSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeBadRequest, "Invalid JSON body", http.StatusBadRequest))
		return
	}
	if body.SerializedTransaction == "" || body.DeclaredNetwork == "" {
		s.writeError(w, apperrors.New(apperrors.ErrCodeBadRequest,
			"serialized_transaction and declared_network are required", http.StatusBadRequest))
		return
	}

	req := signer.Request{
		SerializedTransaction: body.SerializedTransaction,
		DeclaredNetwork:       body.DeclaredNetwork,
	}
	if body.ClientTimestamp > 0 {
		req.ClientTimestamp = time.UnixMilli(body.ClientTimestamp)
	}

	resp, err := s.signing.SignAndSubmit(r.Context(), req)
	if err != nil {
		appErr, ok := apperrors.IsAppError(err)
		if !ok {
			// Raw internals stay server-side; the client gets a summary.
			logger.Error(r.Context(), "signing failed", "error", err)
			appErr = apperrors.ErrInternalError
		} else if appErr.Detail != "" {
			logger.Warn(r.Context(), "signing rejected", "kind", appErr.Code, "detail", appErr.Detail)
		}
		s.writeError(w, appErr)
		return
	}

	s.writeJSON(w, http.StatusOK, signAndSubmitResponse{
		Success:   true,
		Signature: resp.Signature.String(),
		Network:   resp.Network,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a classified error response. The AppError detail is
// never serialized here; clients only see kind and message.
func (s *Server) writeError(w http.ResponseWriter, err *apperrors.AppError) {
	s.writeJSON(w, err.StatusCode, errorResponse{
		Success: false,
		Error:   errorBody{Kind: err.Code, Message: err.Message},
	})
}
