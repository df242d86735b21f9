package controller

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/hc1node/forkmonitor/internal/usecase"
	"github.com/julienschmidt/httprouter"
)

// nodeView is the per node payload of the nodes endpoint.
type nodeView struct {
	IsConnected bool                    `json:"is_connected"`
	LastError   string                  `json:"last_error,omitempty"`
	Momentums   []entity.MomentumRecord `json:"momentums"`
}

// consensusView is the payload of the consensus endpoint.
type consensusView struct {
	Time      string                  `json:"time"`
	Connected int                     `json:"connected"`
	Nodes     int                     `json:"nodes"`
	Consensus []entity.ConsensusEntry `json:"consensus"`
}

func NewRouter(router *httprouter.Router, uc usecase.Monitor, origins []string) *httprouter.Router {
	cors := newCORS(origins)

	router.GET("/api/nodes", cors.wrap(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		snap := uc.Snapshot()
		log.Debug("Serving nodes data", "nodes", len(snap.Nodes), "remote", r.RemoteAddr)

		nodes := make(map[string]nodeView, len(snap.Nodes))
		for _, node := range snap.Nodes {
			momentums := node.History
			if momentums == nil {
				momentums = []entity.MomentumRecord{}
			}
			nodes[node.Identity.Name] = nodeView{
				IsConnected: node.IsConnected,
				LastError:   node.LastError,
				Momentums:   momentums,
			}
		}
		writeJSON(w, nodes)
	}))

	router.GET("/api/consensus", cors.wrap(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		snap := uc.Snapshot()
		consensus := snap.Consensus
		if consensus == nil {
			consensus = []entity.ConsensusEntry{}
		}
		writeJSON(w, &consensusView{
			Time:      snap.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Connected: snap.Connected(),
			Nodes:     len(snap.Nodes),
			Consensus: consensus,
		})
	}))

	router.GET("/api/snapshot", cors.wrap(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		writeJSON(w, uc.Snapshot())
	}))

	router.GET("/api/report", cors.wrap(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(entity.ReportSnapshot(uc.Snapshot())))
	}))

	router.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cors.allow(w, r) {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return router
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}

// cors decides which browser origins may read the API.
type cors struct {
	any     bool
	origins map[string]struct{}
}

func newCORS(origins []string) *cors {
	c := &cors{origins: make(map[string]struct{})}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			c.any = true
		default:
			c.origins[origin] = struct{}{}
		}
	}
	return c
}

// allow sets the allow-origin header if the request's origin is permitted.
func (c *cors) allow(w http.ResponseWriter, r *http.Request) bool {
	if c.any {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return true
	}
	origin := r.Header.Get("Origin")
	if _, ok := c.origins[origin]; ok {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
		return true
	}
	return false
}

func (c *cors) wrap(handle httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		c.allow(w, r)
		handle(w, r, p)
	}
}
