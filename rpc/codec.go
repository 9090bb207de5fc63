package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"offergate/crypto"
	"offergate/native/activity"
	"offergate/native/campaign"
	nativecommon "offergate/native/common"
	"offergate/native/reward"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps the module error taxonomy onto HTTP statuses so a
// client can tell "retry with a fresh proof" from "wait for broker top-up"
// from "stop".
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, campaign.ErrUnauthorized),
		errors.Is(err, campaign.ErrOriginNotAuthorized),
		errors.Is(err, reward.ErrUnauthorized),
		errors.Is(err, reward.ErrNotController),
		errors.Is(err, activity.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, campaign.ErrNotEligible),
		errors.Is(err, campaign.ErrDiscountProof):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, reward.ErrInsufficientFunding):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, campaign.ErrPaused),
		errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, reward.ErrInactive),
		errors.Is(err, reward.ErrOutsideWindow),
		errors.Is(err, reward.ErrAlreadyClaimed),
		errors.Is(err, reward.ErrNotYetDue),
		errors.Is(err, reward.ErrNotWinner),
		errors.Is(err, reward.ErrNotListed),
		errors.Is(err, reward.ErrAutomaticOnly):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrInvalidCombination),
		errors.Is(err, campaign.ErrUnknownActivityType),
		errors.Is(err, campaign.ErrUnknownRewardType),
		errors.Is(err, campaign.ErrInvalidConfig),
		errors.Is(err, reward.ErrInvalidConfig),
		errors.Is(err, reward.ErrBatchTooLarge),
		errors.Is(err, activity.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseCampaignID(raw string) ([32]byte, error) {
	var id [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil || len(decoded) != 32 {
		return id, fmt.Errorf("campaign id must be 32 hex bytes")
	}
	copy(id[:], decoded)
	return id, nil
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseHash(raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil || len(decoded) != 32 {
		return out, fmt.Errorf("expected 32 hex bytes")
	}
	copy(out[:], decoded)
	return out, nil
}

func parseProofPath(raw []string) ([][32]byte, error) {
	out := make([][32]byte, 0, len(raw))
	for _, node := range raw {
		decoded, err := parseHash(node)
		if err != nil {
			return nil, fmt.Errorf("merkle proof node: %w", err)
		}
		out = append(out, decoded)
	}
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.OfferPrefix, addr[:]).String()
}
