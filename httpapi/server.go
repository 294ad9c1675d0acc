// Package httpapi implements the middleware's HTTP surface: health check,
// the application-facing finish drain, the randomness gate, the hold
// override, and the authenticated drand config endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	chainerrors "github.com/Calindra/cartesi-drand/chain/errors"
	"github.com/Calindra/cartesi-drand/common/log"
	"github.com/Calindra/cartesi-drand/config"
	"github.com/Calindra/cartesi-drand/metrics"
	"github.com/Calindra/cartesi-drand/rollupio"
	"github.com/Calindra/cartesi-drand/state"
)

// Server wires the state Manager and the rollup host client into the
// middleware's HTTP handlers.
type Server struct {
	manager    *state.Manager
	rollup     *rollupio.Client
	configPath string
	owner      string
	log        log.Logger
}

// NewServer builds a Server. owner, when non-empty, is the lowercase hex
// address allowed to call PUT /update_drand_config; when empty, the
// endpoint is unauthenticated (used in tests).
func NewServer(manager *state.Manager, rollup *rollupio.Client, configPath, owner string, logger log.Logger) *Server {
	return &Server{manager: manager, rollup: rollup, configPath: configPath, owner: strings.ToLower(owner), log: logger}
}

// Router builds the chi mux, wrapped with Prometheus instrumentation.
func (s *Server) Router() http.Handler {
	mux := chi.NewMux()
	mux.Get("/", s.health)
	mux.Post("/finish", s.finish)
	mux.Get("/random", s.random)
	mux.Post("/hold", s.hold)
	mux.Put("/update_drand_config", s.updateDrandConfig)

	return promhttp.InstrumentHandlerCounter(
		metrics.HTTPCallCounter,
		promhttp.InstrumentHandlerDuration(
			metrics.HTTPLatency,
			promhttp.InstrumentHandlerInFlight(
				metrics.HTTPInFlight,
				mux)))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("cartesi-drand middleware is up"))
}

// finish implements the drain described by the resolved open question: a
// local dequeue first, then a single proxy to the rollup host when the
// queue is empty.
func (s *Server) finish(w http.ResponseWriter, r *http.Request) {
	if item, ok := s.manager.Dequeue(); ok {
		writeJSON(w, http.StatusOK, item.Envelope)
		return
	}

	env, idle, err := s.rollup.Finish(r.Context(), rollupio.StatusAccept)
	if err != nil {
		s.log.Warnw("finish proxy to rollup host failed", "err", err)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if idle {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	opaque, err := s.classify(r.Context(), *env)
	if err != nil {
		s.log.Warnw("finish classification error", "err", err)
	}
	if opaque == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, *opaque)
}

// classify inspects an envelope fetched from the rollup host: beacons are
// verified and stored, pending-beacon inspects are answered with a report,
// and everything else is returned to the caller (and not enqueued — it was
// just fetched synchronously, see the resolved open question on finish).
func (s *Server) classify(ctx context.Context, env rollupio.Envelope) (*rollupio.Envelope, error) {
	raw, decodeErr := env.Data.DecodeHexPayload()
	if decodeErr == nil {
		if beacon, ok := decodeBeaconPayload(raw); ok {
			if _, err := s.manager.VerifyAndSubmit(beacon.Round, beacon.sig); err != nil {
				return nil, err
			}
			return nil, nil
		}
		if env.RequestType == rollupio.RequestTypeInspect && state.IsPendingInspectPayload(raw) {
			pending := s.manager.PendingTimestamp()
			payload := "0x" + strconv.FormatUint(pending, 16)
			if err := s.rollup.Report(ctx, payload); err != nil {
				return nil, fmt.Errorf("reporting pending timestamp: %w", err)
			}
			return nil, nil
		}
	}

	return &env, nil
}

// PollDispatch implements rollupio.Dispatch for the middleware's own
// background Rollup I/O Driver, which polls the rollup host directly: it
// verifies/stores beacons, answers pending-timestamp inspects, and buffers
// everything else in the Input Buffer Manager for the application's finish
// drain to pick up. Unlike the application's driver, the middleware never
// rejects a host input — it has no business logic to reject against, only
// classification.
func (s *Server) PollDispatch(ctx context.Context, env rollupio.Envelope) string {
	opaque, err := s.classify(ctx, env)
	if err != nil {
		s.log.Warnw("background finish classification error", "err", err)
		return rollupio.StatusAccept
	}
	if opaque != nil {
		s.manager.Enqueue(state.Item{Envelope: *opaque})
	}
	return rollupio.StatusAccept
}

func (s *Server) random(w http.ResponseWriter, r *http.Request) {
	tsParam := r.URL.Query().Get("timestamp")
	ts, err := strconv.ParseUint(tsParam, 10, 64)
	if err != nil {
		http.Error(w, "invalid timestamp", http.StatusBadRequest)
		return
	}

	out, err := s.manager.TryServeRandomness(ts)
	switch {
	case err == nil:
		_, _ = w.Write([]byte(out))
	case errors.Is(err, chainerrors.ErrLockContention):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, chainerrors.ErrRandomnessDeferred):
		w.WriteHeader(http.StatusNotFound)
	default:
		s.log.Warnw("random gate error", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) hold(w http.ResponseWriter, _ *http.Request) {
	already, err := s.manager.TrySetHold()
	switch {
	case errors.Is(err, chainerrors.ErrLockContention):
		w.WriteHeader(http.StatusBadRequest)
	case already:
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) updateDrandConfig(w http.ResponseWriter, r *http.Request) {
	sender := r.Header.Get("X-Msg-Sender")
	if s.owner != "" && strings.ToLower(sender) != s.owner {
		if sender == "" {
			w.WriteHeader(http.StatusUnauthorized)
		} else {
			w.WriteHeader(http.StatusForbidden)
		}
		return
	}

	var cfg config.AppConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.manager.UpdateConfig(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := config.SaveAtomic(s.configPath, cfg); err != nil {
		s.log.Warnw("persisting updated drand config failed", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
