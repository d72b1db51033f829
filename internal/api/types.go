// ABOUTME: JSON request and response bodies for the local HTTP API
// ABOUTME: Converts ledger, cache and journal types to their wire shapes

package api

import (
	"time"

	"github.com/2389/healthledger/internal/capability"
	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/store"
	"github.com/2389/healthledger/internal/studycache"
	"github.com/2389/healthledger/internal/submission"
)

// CapabilityResponse is the JSON response for GET /api/capability.
type CapabilityResponse struct {
	State string `json:"state"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// StudyResponse is one study.
type StudyResponse struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Creator     string `json:"creator"`
	CreatedAt   string `json:"created_at"`
	IsActive    bool   `json:"is_active"`
	DataCount   uint64 `json:"data_count"`
}

// ListStudiesResponse is the JSON response for GET /api/studies.
type ListStudiesResponse struct {
	Studies     []StudyResponse `json:"studies"`
	RefreshedAt string          `json:"refreshed_at,omitempty"`
}

// StatsResponse is a study's statistics view. Min and max are fixed to two
// decimal places.
type StatsResponse struct {
	StudyID      uint64 `json:"study_id"`
	State        string `json:"state"`
	TotalRecords uint64 `json:"total_records,omitempty"`
	EncryptedSum string `json:"encrypted_sum,omitempty"`
	MinValue     string `json:"min_value,omitempty"`
	MaxValue     string `json:"max_value,omitempty"`
	LastUpdated  string `json:"last_updated,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SelectionRequest is the JSON request body for PUT /api/selection.
// A null study_id clears the selection.
type SelectionRequest struct {
	StudyID *uint64 `json:"study_id"`
}

// SelectionResponse is the JSON response for the selection endpoints.
type SelectionResponse struct {
	StudyID *uint64        `json:"study_id"`
	Stats   *StatsResponse `json:"stats,omitempty"`
}

// SubmitRequest is the JSON request body for POST /api/submissions. Value is
// a decimal string so it is parsed exactly.
type SubmitRequest struct {
	StudyID *uint64 `json:"study_id,omitempty"`
	Value   string  `json:"value"`
}

// SubmitResponse is the JSON response for an accepted submission.
type SubmitResponse struct {
	ReceiptID   string `json:"receipt_id,omitempty"`
	StudyID     uint64 `json:"study_id"`
	Handle      string `json:"handle"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// CreateStudyRequest is the JSON request body for POST /api/studies.
type CreateStudyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateStudyResponse is the JSON response for POST /api/studies.
type CreateStudyResponse struct {
	ID uint64 `json:"id"`
}

// ReceiptResponse is one journaled outcome.
type ReceiptResponse struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	StudyID   *uint64 `json:"study_id,omitempty"`
	Submitter string  `json:"submitter"`
	Status    string  `json:"status"`
	TxHash    string  `json:"tx_hash,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// ListReceiptsResponse is the JSON response for GET /api/receipts.
type ListReceiptsResponse struct {
	Receipts []ReceiptResponse `json:"receipts"`
	Summary  SummaryResponse   `json:"summary"`
}

// SummaryResponse counts receipts by status.
type SummaryResponse struct {
	Total    int    `json:"total"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Failed   int    `json:"failed"`
	LastAt   string `json:"last_at,omitempty"`
}

func toCapability(s capability.Status) CapabilityResponse {
	return CapabilityResponse{
		State: s.State.String(),
		Ready: s.State == capability.StateReady,
		Error: s.Err,
	}
}

func toStudy(st ledger.Study) StudyResponse {
	return StudyResponse{
		ID:          st.ID,
		Name:        st.Name,
		Description: st.Description,
		Creator:     st.Creator.Hex(),
		CreatedAt:   st.CreatedAt.UTC().Format(time.RFC3339),
		IsActive:    st.IsActive,
		DataCount:   st.DataCount,
	}
}

func toStudies(studies []ledger.Study) []StudyResponse {
	out := make([]StudyResponse, 0, len(studies))
	for _, st := range studies {
		out = append(out, toStudy(st))
	}
	return out
}

func toStudyList(studies []ledger.Study, refreshedAt time.Time) ListStudiesResponse {
	resp := ListStudiesResponse{Studies: toStudies(studies)}
	if !refreshedAt.IsZero() {
		resp.RefreshedAt = refreshedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

func toStats(id uint64, v studycache.StatsView) *StatsResponse {
	resp := &StatsResponse{StudyID: id, State: v.State.String()}
	switch v.State {
	case studycache.StatsLoaded:
		resp.TotalRecords = v.Stats.TotalRecords
		resp.EncryptedSum = v.Stats.EncryptedSum.Hex()
		resp.MinValue = v.Stats.MinValue.StringFixed(2)
		resp.MaxValue = v.Stats.MaxValue.StringFixed(2)
		if !v.Stats.LastUpdated.IsZero() {
			resp.LastUpdated = v.Stats.LastUpdated.UTC().Format(time.RFC3339)
		}
	case studycache.StatsFailed:
		resp.Error = v.Err.Error()
	}
	return resp
}

func toSubmit(res *submission.Result) SubmitResponse {
	return SubmitResponse{
		ReceiptID:   res.ReceiptID,
		StudyID:     res.StudyID,
		Handle:      res.Handle.Hex(),
		TxHash:      res.Receipt.TxHash.Hex(),
		BlockNumber: res.Receipt.BlockNumber,
	}
}

func toReceipts(receipts []*store.Receipt) []ReceiptResponse {
	out := make([]ReceiptResponse, 0, len(receipts))
	for _, r := range receipts {
		resp := ReceiptResponse{
			ID:        r.ID,
			Kind:      string(r.Kind),
			Submitter: r.Submitter,
			Status:    string(r.Status),
			TxHash:    r.TxHash,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if r.HasStudy() {
			id := r.StudyID
			resp.StudyID = &id
		}
		out = append(out, resp)
	}
	return out
}

func toSummary(s *store.ReceiptSummary) SummaryResponse {
	resp := SummaryResponse{
		Total:    s.Total,
		Accepted: s.Accepted,
		Rejected: s.Rejected,
		Failed:   s.Failed,
	}
	if s.LastAt != nil {
		resp.LastAt = s.LastAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}
