package main

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"
)

type buildInfo struct {
	Version   string
	GitSHA    string
	BuildTime string
}

func readBuildInfo() buildInfo {
	out := buildInfo{Version: "dev"}
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			out.Version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.GitSHA = setting.Value
			case "vcs.time":
				out.BuildTime = setting.Value
			}
		}
	}
	return out
}

type gatewayStatusResponse struct {
	Version       string          `json:"version"`
	GitSHA        string          `json:"git_sha"`
	BuildTime     string          `json:"build_time"`
	ListeningAddr string          `json:"listening_addr"`
	Network       string          `json:"network,omitempty"`
	ChainID       string          `json:"chain_id,omitempty"`
	Variants      []string        `json:"variants"`
	Uptime        string          `json:"uptime"`
	Capabilities  map[string]bool `json:"capabilities"`
	Dependencies  map[string]bool `json:"deps"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	writeText(w, "OK")
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	info := readBuildInfo()
	status := gatewayStatusResponse{
		Version:       info.Version,
		GitSHA:        info.GitSHA,
		BuildTime:     info.BuildTime,
		ListeningAddr: s.cfg.ListenAddr,
		Network:       s.registry.Network(),
		Uptime:        time.Since(s.started).Truncate(time.Second).String(),
		Capabilities: map[string]bool{
			"strict_status_codes": s.cfg.StrictStatusCodes,
			"rate_limit":          s.limiter != nil,
			"journal":             s.journal != nil,
			"registry":            len(s.registry.Entries()) > 0,
		},
		Dependencies: map[string]bool{
			"rpc_reachable": s.pingLedger(r.Context()),
		},
	}
	if s.chainID != nil {
		status.ChainID = s.chainID.String()
	}
	for _, v := range s.variants {
		status.Variants = append(status.Variants, v.Name)
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) pingLedger(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.orch.Client().GasPrice(ctx)
	return err == nil
}
