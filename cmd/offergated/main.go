package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"offergate/config"
	"offergate/core/events"
	"offergate/core/state"
	"offergate/crypto"
	"offergate/native/activity"
	"offergate/native/campaign"
	"offergate/native/eligibility"
	"offergate/native/registry"
	"offergate/native/reward"
	"offergate/observability/logging"
	"offergate/rpc"
	"offergate/storage"
)

const envVar = "OFFERGATE_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup(cfg.ServiceName, env)

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("Invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	st := state.NewManager(db)
	if err := bootstrapState(cfg, st); err != nil {
		logger.Error("Failed to bootstrap state", slog.Any("error", err))
		os.Exit(1)
	}

	reg := registry.NewRegistry(owner, st)
	if err := registerTemplates(reg, owner); err != nil {
		logger.Error("Failed to register campaign templates", slog.Any("error", err))
		os.Exit(1)
	}

	factory := campaign.NewFactory(owner, reg, st, eligibility.NewVerifier(nil))
	factory.SetEmitter(events.NewLogEmitter(logger))
	origins, err := cfg.OriginAddresses()
	if err != nil {
		logger.Error("Invalid origin address", slog.Any("error", err))
		os.Exit(1)
	}
	for _, origin := range append([][20]byte{owner}, origins...) {
		if err := factory.AuthorizeOrigin(owner, origin, true); err != nil {
			logger.Error("Failed to authorize origin", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if err := bootstrapCampaigns(cfg, factory, owner, logger); err != nil {
		logger.Error("Failed to bootstrap campaigns", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(factory, owner, cfg.AdminToken, logger)

	apiSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API server listening", slog.String("addr", cfg.ListenAddress))
		errCh <- apiSrv.ListenAndServe()
	}()
	go func() {
		logger.Info("Metrics server listening", slog.String("addr", cfg.MetricsAddress))
		errCh <- metricsSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API shutdown failed", slog.Any("error", err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics shutdown failed", slog.Any("error", err))
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// bootstrapState seeds tokens, collections and admin roles from the config.
// Registration is idempotent so restarts replay it safely.
func bootstrapState(cfg *config.Config, st *state.Manager) error {
	for _, token := range cfg.Tokens {
		if st.TokenExists(token.Symbol) {
			continue
		}
		if err := st.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			return fmt.Errorf("register token %s: %w", token.Symbol, err)
		}
	}
	for _, coll := range cfg.Collections {
		if st.CollectionExists(coll.Symbol) {
			continue
		}
		if err := st.RegisterCollection(coll.Symbol, coll.Name); err != nil {
			return fmt.Errorf("register collection %s: %w", coll.Symbol, err)
		}
	}
	admins, err := cfg.AdminAddresses()
	if err != nil {
		return err
	}
	for _, admin := range admins {
		if err := st.GrantRole(registry.RoleCampaignAdmin, admin[:]); err != nil {
			return fmt.Errorf("grant admin role: %w", err)
		}
	}
	return nil
}

// bootstrapCampaigns provisions the campaigns declared in the config. The
// pinned CreatedAt and declaration order keep campaign identities stable
// across restarts, so persisted claim ledgers keep applying.
func bootstrapCampaigns(cfg *config.Config, factory *campaign.Factory, owner [20]byte, logger *slog.Logger) error {
	for i, camp := range cfg.Campaigns {
		params, err := campaignParams(&camp, owner)
		if err != nil {
			return fmt.Errorf("campaign %d: %w", i, err)
		}
		instance, err := factory.CreateCampaign(*params)
		if err != nil {
			return fmt.Errorf("campaign %d (%s/%s): %w", i, camp.ActivityType, camp.RewardType, err)
		}
		logger.Info("Campaign provisioned",
			slog.String("id", fmt.Sprintf("%x", instance.ID)),
			slog.String("activityType", instance.ActivityType),
			slog.String("rewardType", instance.RewardType))
	}
	return nil
}

func campaignParams(camp *config.CampaignConfig, owner [20]byte) (*campaign.CreateParams, error) {
	creator, err := crypto.DecodeAddress(camp.Creator)
	if err != nil {
		return nil, fmt.Errorf("invalid creator: %w", err)
	}
	params := &campaign.CreateParams{
		ActivityType: camp.ActivityType,
		RewardType:   camp.RewardType,
		Origin:       owner,
		Fee:          campaign.FeeConfig{AffiliateBps: camp.AffiliateBps},
		CreatedAt:    camp.CreatedAt,
		Eligibility: campaign.EligibilityConfig{
			Enabled:                  camp.EligibilityEnabled,
			ProofValidity:            camp.ProofValidity,
			RequireProofForAllClaims: camp.RequireProof,
		},
	}
	copy(params.Creator[:], creator.Bytes())
	if camp.SigningKey != "" {
		key, err := crypto.DecodeAddress(camp.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		copy(params.Eligibility.SigningKey[:], key.Bytes())
	}
	if camp.Affiliate != "" {
		affiliate, err := crypto.DecodeAddress(camp.Affiliate)
		if err != nil {
			return nil, fmt.Errorf("invalid affiliate: %w", err)
		}
		copy(params.Affiliate[:], affiliate.Bytes())
	}

	params.ActivityConfig = activity.Config{
		WindowStart: camp.ActivityWindowStart,
		WindowEnd:   camp.ActivityWindowEnd,
	}
	for _, crit := range camp.Criteria {
		threshold, ok := new(big.Int).SetString(crit.Threshold, 10)
		if !ok {
			return nil, fmt.Errorf("invalid threshold %q for asset %s", crit.Threshold, crit.Asset)
		}
		params.ActivityConfig.Criteria = append(params.ActivityConfig.Criteria, activity.Criterion{
			Asset:     crit.Asset,
			Threshold: threshold,
		})
	}

	params.RewardConfig = reward.Config{
		Name:             camp.RewardName,
		Asset:            camp.RewardAsset,
		ExpectedCount:    camp.ExpectedCount,
		DistributionDate: camp.DistributionDate,
		WindowStart:      camp.RewardWindowStart,
		WindowEnd:        camp.RewardWindowEnd,
		MaxBatchSize:     camp.MaxBatchSize,
	}
	if camp.Automatic {
		params.RewardConfig.Mode = reward.ModeAutomatic
	}
	if camp.BestEffortBatch {
		params.RewardConfig.BatchPolicy = reward.BatchBestEffort
	}
	if camp.PerClaimAmount != "" {
		amount, ok := new(big.Int).SetString(camp.PerClaimAmount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid per-claim amount %q", camp.PerClaimAmount)
		}
		params.RewardConfig.PerClaimAmount = amount
	}
	if camp.Broker != "" {
		broker, err := crypto.DecodeAddress(camp.Broker)
		if err != nil {
			return nil, fmt.Errorf("invalid broker: %w", err)
		}
		copy(params.RewardConfig.Broker[:], broker.Bytes())
	}
	return params, nil
}

// registerTemplates wires every built-in activity and reward implementation
// into the registry and marks all pairings as claimable.
func registerTemplates(reg *registry.Registry, owner [20]byte) error {
	activities := map[string]registry.ActivityTemplate{
		activity.TypeHoldThreshold: func(id [32]byte, tmplOwner [20]byte, cfg activity.Config, st *state.Manager, verifier *eligibility.Verifier) (activity.Module, error) {
			mod, err := activity.NewHoldThreshold(id, tmplOwner, cfg, st, verifier)
			if err != nil {
				return nil, err
			}
			return mod, nil
		},
		activity.TypePurchaseThreshold: func(id [32]byte, tmplOwner [20]byte, cfg activity.Config, st *state.Manager, verifier *eligibility.Verifier) (activity.Module, error) {
			mod, err := activity.NewPurchaseThreshold(id, tmplOwner, cfg, st, verifier)
			if err != nil {
				return nil, err
			}
			return mod, nil
		},
	}
	rewards := map[string]registry.RewardTemplate{
		reward.TypeTokenTransfer: func(id [32]byte, tmplOwner, controller [20]byte, cfg reward.Config, st *state.Manager) (reward.Module, error) {
			mod, err := reward.NewTokenTransfer(id, tmplOwner, controller, cfg, st)
			if err != nil {
				return nil, err
			}
			return mod, nil
		},
		reward.TypeNFTMint: func(id [32]byte, tmplOwner, controller [20]byte, cfg reward.Config, st *state.Manager) (reward.Module, error) {
			mod, err := reward.NewNFTMint(id, tmplOwner, controller, cfg, st)
			if err != nil {
				return nil, err
			}
			return mod, nil
		},
		reward.TypeRaffle: func(id [32]byte, tmplOwner, controller [20]byte, cfg reward.Config, st *state.Manager) (reward.Module, error) {
			mod, err := reward.NewRaffle(id, tmplOwner, controller, cfg, st)
			if err != nil {
				return nil, err
			}
			return mod, nil
		},
		reward.TypeAirdrop: func(id [32]byte, tmplOwner, controller [20]byte, cfg reward.Config, st *state.Manager) (reward.Module, error) {
			mod, err := reward.NewAirdrop(id, tmplOwner, controller, cfg, st)
			if err != nil {
				return nil, err
			}
			return mod, nil
		},
		reward.TypeWhitelist: func(id [32]byte, tmplOwner, controller [20]byte, cfg reward.Config, st *state.Manager) (reward.Module, error) {
			mod, err := reward.NewWhitelistSpot(id, tmplOwner, controller, cfg, st)
			if err != nil {
				return nil, err
			}
			return mod, nil
		},
	}

	for typ, tmpl := range activities {
		if err := reg.RegisterActivity(owner, typ, tmpl); err != nil {
			return fmt.Errorf("register activity %s: %w", typ, err)
		}
	}
	for typ, tmpl := range rewards {
		if err := reg.RegisterReward(owner, typ, tmpl); err != nil {
			return fmt.Errorf("register reward %s: %w", typ, err)
		}
	}
	for actType := range activities {
		for rewType := range rewards {
			if err := reg.SetValidCombination(owner, actType, rewType, true); err != nil {
				return fmt.Errorf("allow combination %s/%s: %w", actType, rewType, err)
			}
		}
	}
	return nil
}
