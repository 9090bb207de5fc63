package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"offergate/merkle"
	"offergate/native/activity"
	"offergate/native/campaign"
	"offergate/native/reward"
)

type claimRequest struct {
	User         string   `json:"user"`
	Proof        string   `json:"proof,omitempty"`
	DiscountRate uint64   `json:"discountRate,omitempty"`
	MerkleProof  []string `json:"merkleProof,omitempty"`
}

type claimResponse struct {
	Asset        string `json:"asset,omitempty"`
	Amount       string `json:"amount,omitempty"`
	TokenID      uint64 `json:"tokenId,omitempty"`
	DiscountRate uint64 `json:"discountRate"`
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request) (*campaign.Instance, bool) {
	id, err := parseCampaignID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	instance, ok := s.factory.Instance(id)
	if !ok {
		writeDomainError(w, campaign.ErrInstanceNotFound)
		return nil, false
	}
	return instance, true
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user address: %v", err))
		return
	}
	var proofBytes []byte
	if req.Proof != "" {
		proofBytes, err = hex.DecodeString(req.Proof)
		if err != nil {
			writeError(w, http.StatusBadRequest, "proof must be hex encoded")
			return
		}
	}
	merkleProof, err := parseProofPath(req.MerkleProof)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	started := time.Now()
	receipt, err := instance.Engine.Claim(user, proofBytes, req.DiscountRate, merkleProof)
	s.metrics.ObserveClaim(instance.RewardType, err, time.Since(started))
	if err != nil {
		s.log.Info("claim rejected",
			"campaign", hex.EncodeToString(instance.ID[:]),
			"user", req.User,
			"reason", err.Error())
		writeDomainError(w, err)
		return
	}
	s.log.Info("claim settled",
		"campaign", hex.EncodeToString(instance.ID[:]),
		"user", req.User,
		"discountRate", req.DiscountRate)
	resp := claimResponse{DiscountRate: req.DiscountRate}
	if receipt != nil {
		resp.Asset = receipt.Asset
		if receipt.Amount != nil {
			resp.Amount = receipt.Amount.String()
		}
		if receipt.HasTokenID {
			resp.TokenID = receipt.TokenID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type campaignInfo struct {
	ID           string `json:"id"`
	ActivityType string `json:"activityType"`
	RewardType   string `json:"rewardType"`
	Owner        string `json:"owner"`
	Paused       bool   `json:"paused"`
	CreatedAt    uint64 `json:"createdAt"`
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, _ *http.Request) {
	instances := s.factory.Instances()
	out := make([]campaignInfo, 0, len(instances))
	for _, instance := range instances {
		out = append(out, campaignInfo{
			ID:           hex.EncodeToString(instance.ID[:]),
			ActivityType: instance.ActivityType,
			RewardType:   instance.RewardType,
			Owner:        formatAddress(instance.Owner),
			Paused:       instance.Engine.Paused(),
			CreatedAt:    instance.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCampaignInfo(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, campaignInfo{
		ID:           hex.EncodeToString(instance.ID[:]),
		ActivityType: instance.ActivityType,
		RewardType:   instance.RewardType,
		Owner:        formatAddress(instance.Owner),
		Paused:       instance.Engine.Paused(),
		CreatedAt:    instance.CreatedAt,
	})
}

type canClaimResponse struct {
	CanClaim bool   `json:"canClaim"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleCanClaim(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	user, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid address: %v", err))
		return
	}
	canClaim, reason := instance.Reward.CanClaim(user, uint64(time.Now().Unix()))
	writeJSON(w, http.StatusOK, canClaimResponse{CanClaim: canClaim, Reason: reason})
}

type statsResponse struct {
	Claimed       uint64 `json:"claimed"`
	ExpectedCount uint64 `json:"expectedCount"`
	Active        bool   `json:"active"`
	Mode          string `json:"mode"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	stats, err := instance.Reward.Stats()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Claimed:       stats.Claimed,
		ExpectedCount: stats.ExpectedCount,
		Active:        stats.Active,
		Mode:          stats.Mode.String(),
	})
}

type criterionRequest struct {
	Asset     string `json:"asset"`
	Threshold string `json:"threshold"`
}

type createCampaignRequest struct {
	ActivityType string             `json:"activityType"`
	RewardType   string             `json:"rewardType"`
	Creator      string             `json:"creator"`
	Affiliate    string             `json:"affiliate,omitempty"`
	Origin       string             `json:"origin"`
	Activity     struct {
		Criteria         []criterionRequest `json:"criteria"`
		WindowStart      uint64             `json:"windowStart"`
		WindowEnd        uint64             `json:"windowEnd"`
		SnapshotTime     uint64             `json:"snapshotTime,omitempty"`
		MinPurchaseCount uint64             `json:"minPurchaseCount,omitempty"`
	} `json:"activity"`
	Reward struct {
		Name             string `json:"name"`
		Asset            string `json:"asset"`
		PerClaimAmount   string `json:"perClaimAmount,omitempty"`
		ExpectedCount    uint64 `json:"expectedCount,omitempty"`
		Broker           string `json:"broker,omitempty"`
		Automatic        bool   `json:"automatic"`
		DistributionDate uint64 `json:"distributionDate,omitempty"`
		WindowStart      uint64 `json:"windowStart"`
		WindowEnd        uint64 `json:"windowEnd"`
		BestEffortBatch  bool   `json:"bestEffortBatch"`
		MaxBatchSize     int    `json:"maxBatchSize,omitempty"`
	} `json:"reward"`
	Eligibility struct {
		Enabled       bool   `json:"enabled"`
		SigningKey    string `json:"signingKey,omitempty"`
		ProofValidity uint64 `json:"proofValidity,omitempty"`
		RequireProof  bool   `json:"requireProof"`
	} `json:"eligibility"`
	AffiliateBps uint32 `json:"affiliateBps,omitempty"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := s.buildCreateParams(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	instance, err := s.factory.CreateCampaign(*params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Info("campaign created",
		"campaign", hex.EncodeToString(instance.ID[:]),
		"activityType", instance.ActivityType,
		"rewardType", instance.RewardType)
	writeJSON(w, http.StatusCreated, campaignInfo{
		ID:           hex.EncodeToString(instance.ID[:]),
		ActivityType: instance.ActivityType,
		RewardType:   instance.RewardType,
		Owner:        formatAddress(instance.Owner),
		CreatedAt:    instance.CreatedAt,
	})
}

func (s *Server) buildCreateParams(req *createCampaignRequest) (*campaign.CreateParams, error) {
	creator, err := parseAddress(req.Creator)
	if err != nil {
		return nil, fmt.Errorf("invalid creator: %w", err)
	}
	origin := s.operator
	if req.Origin != "" {
		if origin, err = parseAddress(req.Origin); err != nil {
			return nil, fmt.Errorf("invalid origin: %w", err)
		}
	}
	var affiliate [20]byte
	if req.Affiliate != "" {
		if affiliate, err = parseAddress(req.Affiliate); err != nil {
			return nil, fmt.Errorf("invalid affiliate: %w", err)
		}
	}

	activityCfg := activity.Config{
		WindowStart:      req.Activity.WindowStart,
		WindowEnd:        req.Activity.WindowEnd,
		SnapshotTime:     req.Activity.SnapshotTime,
		MinPurchaseCount: req.Activity.MinPurchaseCount,
	}
	for _, crit := range req.Activity.Criteria {
		threshold, ok := new(big.Int).SetString(crit.Threshold, 10)
		if !ok {
			return nil, fmt.Errorf("invalid threshold %q", crit.Threshold)
		}
		activityCfg.Criteria = append(activityCfg.Criteria, activity.Criterion{
			Asset:     crit.Asset,
			Threshold: threshold,
		})
	}

	rewardCfg := reward.Config{
		Name:             req.Reward.Name,
		Asset:            req.Reward.Asset,
		ExpectedCount:    req.Reward.ExpectedCount,
		DistributionDate: req.Reward.DistributionDate,
		WindowStart:      req.Reward.WindowStart,
		WindowEnd:        req.Reward.WindowEnd,
		MaxBatchSize:     req.Reward.MaxBatchSize,
	}
	if req.Reward.Automatic {
		rewardCfg.Mode = reward.ModeAutomatic
	}
	if req.Reward.BestEffortBatch {
		rewardCfg.BatchPolicy = reward.BatchBestEffort
	}
	if req.Reward.PerClaimAmount != "" {
		amount, ok := new(big.Int).SetString(req.Reward.PerClaimAmount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid per-claim amount %q", req.Reward.PerClaimAmount)
		}
		rewardCfg.PerClaimAmount = amount
	}
	if req.Reward.Broker != "" {
		if rewardCfg.Broker, err = parseAddress(req.Reward.Broker); err != nil {
			return nil, fmt.Errorf("invalid broker: %w", err)
		}
	}

	elig := campaign.EligibilityConfig{
		Enabled:                  req.Eligibility.Enabled,
		ProofValidity:            req.Eligibility.ProofValidity,
		RequireProofForAllClaims: req.Eligibility.RequireProof,
	}
	if req.Eligibility.SigningKey != "" {
		if elig.SigningKey, err = parseAddress(req.Eligibility.SigningKey); err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
	}

	return &campaign.CreateParams{
		ActivityType:   req.ActivityType,
		ActivityConfig: activityCfg,
		RewardType:     req.RewardType,
		RewardConfig:   rewardCfg,
		Eligibility:    elig,
		Fee:            campaign.FeeConfig{AffiliateBps: req.AffiliateBps},
		Origin:         origin,
		Creator:        creator,
		Affiliate:      affiliate,
	}, nil
}

type discountEntry struct {
	User string `json:"user"`
	Rate uint64 `json:"rate"`
}

type buildRootRequest struct {
	Entries []discountEntry `json:"entries"`
}

type buildRootResponse struct {
	Root   string              `json:"root"`
	Proofs map[string][]string `json:"proofs"`
}

// handleBuildDiscountRoot computes the root and per-user proofs for a
// discount list so operators can publish the root and hand proofs out.
func (s *Server) handleBuildDiscountRoot(w http.ResponseWriter, r *http.Request) {
	var req buildRootRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries must not be empty")
		return
	}
	leaves := make([][32]byte, 0, len(req.Entries))
	users := make([]string, 0, len(req.Entries))
	for _, entry := range req.Entries {
		user, err := parseAddress(entry.User)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user %q: %v", entry.User, err))
			return
		}
		leaves = append(leaves, merkle.DiscountLeaf(user, entry.Rate))
		users = append(users, entry.User)
	}
	s.writeTreeResponse(w, leaves, users)
}

type allocationEntry struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type buildAllocationRequest struct {
	Entries []allocationEntry `json:"entries"`
}

// handleBuildAllocationRoot builds an allocation tree committing each user to
// an arbitrary amount, for airdrop and funding lists published off-system.
func (s *Server) handleBuildAllocationRoot(w http.ResponseWriter, r *http.Request) {
	var req buildAllocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries must not be empty")
		return
	}
	leaves := make([][32]byte, 0, len(req.Entries))
	users := make([]string, 0, len(req.Entries))
	for _, entry := range req.Entries {
		user, err := parseAddress(entry.User)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user %q: %v", entry.User, err))
			return
		}
		amount, ok := new(big.Int).SetString(entry.Amount, 10)
		if !ok || amount.Sign() < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid amount %q", entry.Amount))
			return
		}
		leaves = append(leaves, merkle.AmountLeaf(user, amount))
		users = append(users, entry.User)
	}
	s.writeTreeResponse(w, leaves, users)
}

func (s *Server) writeTreeResponse(w http.ResponseWriter, leaves [][32]byte, users []string) {
	tree, err := merkle.NewTree(leaves)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	root := tree.Root()
	resp := buildRootResponse{
		Root:   hex.EncodeToString(root[:]),
		Proofs: make(map[string][]string, len(users)),
	}
	for i, user := range users {
		proof, ok := tree.Prove(leaves[i])
		if !ok {
			writeError(w, http.StatusInternalServerError, "proof generation failed")
			return
		}
		encoded := make([]string, len(proof))
		for j, node := range proof {
			encoded[j] = hex.EncodeToString(node[:])
		}
		resp.Proofs[user] = encoded
	}
	writeJSON(w, http.StatusOK, resp)
}

type rootRequest struct {
	Root string `json:"root"`
}

func (s *Server) handleSetDiscountRoot(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req rootRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	root, err := parseHash(req.Root)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid root: %v", err))
		return
	}
	if err := instance.Engine.SetDiscountRoot(instance.Owner, root); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": req.Root})
}

type eligibilityRequest struct {
	Enabled       bool   `json:"enabled"`
	SigningKey    string `json:"signingKey,omitempty"`
	ProofValidity uint64 `json:"proofValidity,omitempty"`
	RequireProof  bool   `json:"requireProof"`
}

func (s *Server) handleSetEligibility(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req eligibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := campaign.EligibilityConfig{
		Enabled:                  req.Enabled,
		ProofValidity:            req.ProofValidity,
		RequireProofForAllClaims: req.RequireProof,
	}
	if req.SigningKey != "" {
		key, err := parseAddress(req.SigningKey)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid signing key: %v", err))
			return
		}
		cfg.SigningKey = key
	}
	if err := instance.Engine.SetEligibilityConfig(instance.Owner, cfg); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feeRequest struct {
	AffiliateBps uint32 `json:"affiliateBps"`
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req feeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := instance.Engine.SetFeeConfig(instance.Owner, campaign.FeeConfig{AffiliateBps: req.AffiliateBps}); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	if err := instance.Engine.Pause(instance.Owner); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	if err := instance.Engine.Unpause(instance.Owner); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordActivityRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req recordActivityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user: %v", err))
		return
	}
	amount, ok2 := new(big.Int).SetString(req.Amount, 10)
	if !ok2 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid amount %q", req.Amount))
		return
	}
	now := uint64(time.Now().Unix())
	if err := instance.Activity.RecordActivity(instance.Owner, user, amount, nil, now); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type distributeRequest struct {
	Users []string `json:"users"`
}

type distributeResponse struct {
	Requested int      `json:"requested"`
	Settled   int      `json:"settled"`
	Skipped   []string `json:"skipped,omitempty"`
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req distributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	users := make([][20]byte, 0, len(req.Users))
	for _, raw := range req.Users {
		user, err := parseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user %q: %v", raw, err))
			return
		}
		users = append(users, user)
	}
	report, err := instance.Reward.TriggerAutomaticDistribution(instance.Owner, users, uint64(time.Now().Unix()))
	if report != nil {
		s.metrics.ObserveBatch(report.Settled)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := distributeResponse{Requested: report.Requested, Settled: report.Settled}
	for _, skip := range report.Skipped {
		resp.Skipped = append(resp.Skipped, fmt.Sprintf("%s: %s", formatAddress(skip.User), skip.Reason))
	}
	writeJSON(w, http.StatusOK, resp)
}
