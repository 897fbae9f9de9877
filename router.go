package main

import (
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pixiechain/mediagate/pkg/journal"
	"github.com/pixiechain/mediagate/pkg/orchestrator"
	"github.com/pixiechain/mediagate/pkg/registry"
)

type server struct {
	cfg      Config
	orch     *orchestrator.Orchestrator
	registry *registry.Registry
	// journal is nil when disabled.
	journal  *journal.Journal
	variants []*orchestrator.Variant
	log      logrus.FieldLogger
	chainID  *big.Int
	started  time.Time

	gatherer prometheus.Gatherer
	http     *httpMetrics
	limiter  *rateLimiter
	ids      *idGenerator
}

func newServer(cfg Config, orch *orchestrator.Orchestrator, reg *registry.Registry, jr *journal.Journal, variants []*orchestrator.Variant, log logrus.FieldLogger, promReg *prometheus.Registry) *server {
	if reg == nil {
		reg = registry.Empty()
	}
	return &server{
		cfg:      cfg,
		orch:     orch,
		registry: reg,
		journal:  jr,
		variants: variants,
		log:      log,
		started:  time.Now(),
		gatherer: promReg,
		http:     newHTTPMetrics(promReg),
		limiter:  newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute),
		ids:      newIDGenerator(),
	}
}

// mountPath keeps the single-asset collection at the legacy prefix.
func mountPath(v *orchestrator.Variant) string {
	if v == orchestrator.Media {
		return "/api/v1/contracts"
	}
	return "/api/v1/" + v.Name + "/contracts"
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withRequestID, s.accessLog, s.rateLimit)

	r.HandleFunc("/health", s.health).Methods("GET", "OPTIONS")
	r.HandleFunc("/status", s.status).Methods("GET", "OPTIONS")
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	r.HandleFunc("/api/v1/newAccount", s.newAccount).Methods("POST", "OPTIONS")
	r.HandleFunc("/getBalanceOf", s.getBalanceOf).Methods("GET", "OPTIONS")
	r.HandleFunc("/getTotalSupply", s.getTotalSupply).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/collections", s.collections).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/journal", s.journalList).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/journal/{tx}", s.journalEntry).Methods("GET", "OPTIONS")

	for _, v := range s.variants {
		s.mountVariant(r.PathPrefix(mountPath(v)).Subrouter(), v)
	}
	return r
}

func (s *server) mountVariant(r *mux.Router, v *orchestrator.Variant) {
	has := func(method string) bool {
		_, ok := v.ABI.Methods[method]
		return ok
	}

	r.HandleFunc("/mint", s.txHandler(v, orchestrator.KindCreate)).Methods("POST", "OPTIONS")
	r.HandleFunc("/mintPrice", s.mintPrice(v)).Methods("POST", "OPTIONS")
	r.HandleFunc("/transfer", s.txHandler(v, orchestrator.KindTransfer)).Methods("POST", "OPTIONS")
	r.HandleFunc("/burn", s.txHandler(v, orchestrator.KindDestroy)).Methods("POST", "OPTIONS")
	if has("finalize") {
		r.HandleFunc("/finalize", s.txHandler(v, orchestrator.KindFinalize)).Methods("POST", "OPTIONS")
	}
	if has("updateTokenURI") {
		r.HandleFunc("/updateTokenURI", s.txHandler(v, orchestrator.KindUpdateMetadata)).Methods("POST", "OPTIONS")
	}
	if has("setURI") {
		r.HandleFunc("/updateURI", s.txHandler(v, orchestrator.KindUpdateMetadata)).Methods("POST", "OPTIONS")
	}

	r.HandleFunc("/mintStatus", s.mintStatus(v)).Methods("GET", "OPTIONS")
	if v.Fingerprinted {
		r.HandleFunc("/tokenIdByContentHash", s.tokenIDByContentHash(v)).Methods("GET", "OPTIONS")
	}
	if v.Native {
		r.HandleFunc("/getMemoByTransactionHash", s.memo).Methods("GET", "OPTIONS")
	}
	if has("name") && has("symbol") && has("totalSupply") {
		r.HandleFunc("/info", s.info(v)).Methods("GET", "OPTIONS")
	}
	if has("tokenContentHashes") {
		r.HandleFunc("/tokenMediaInfo", s.tokenMediaInfo(v)).Methods("GET", "OPTIONS")
	}
	for _, rt := range readRoutes {
		if method := rt.methodFor(v); method != "" {
			r.HandleFunc("/"+rt.path, s.readHandler(v, rt, method)).Methods("GET", "OPTIONS")
		}
	}
}
