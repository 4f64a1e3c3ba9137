package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/service"
	"go.uber.org/zap"
)

const msgSuccess = "success"

type envelope struct {
	Data any    `json:"data"`
	Msg  string `json:"msg"`
}

type fansQueryRequest struct {
	AccountName string `json:"account_name"`
	Cookie      string `json:"cookie"`
	Token       string `json:"token"`
	Fingerprint string `json:"fingerprint"`
}

type addCookieRequest struct {
	Cookie string `json:"cookie"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Data: "Server is running", Msg: msgSuccess})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, _ := s.pool.Status(r.Context())
	status := "ok"
	if st.Total > 0 && st.Valid+st.Unknown == 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"status": status, "pool": st}, Msg: msgSuccess})
}

func (s *Server) handleFansQuery(w http.ResponseWriter, r *http.Request) {
	var req fansQueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	res, err := s.fans.Query(r.Context(), service.FansQuery{
		AccountName: req.AccountName,
		Cookie:      req.Cookie,
		Token:       req.Token,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: res, Msg: msgSuccess})
}

func (s *Server) handleAddCookie(w http.ResponseWriter, r *http.Request) {
	var req addCookieRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	inserted, err := s.pool.Add(r.Context(), req.Cookie)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]bool{"inserted": inserted}, Msg: msgSuccess})
}

func (s *Server) handleSelectCookie(w http.ResponseWriter, r *http.Request) {
	c, err := s.pool.Select(r.Context())
	switch {
	case errors.Is(err, errs.ErrNoneAvailable):
		writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"available": false}, Msg: err.Error()})
	case err != nil:
		writeServiceError(w, s.log, err)
	default:
		writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"available": true, "cookie": c}, Msg: msgSuccess})
	}
}

func (s *Server) handleCookieStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.pool.Status(r.Context())
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: st, Msg: msgSuccess})
}

func (s *Server) handleCookieDetails(w http.ResponseWriter, r *http.Request) {
	d, err := s.pool.Details(r.Context())
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"cookies": d, "total": len(d)}, Msg: msgSuccess})
}

func (s *Server) handleCleanCookies(w http.ResponseWriter, r *http.Request) {
	n, err := s.pool.PruneInvalid(r.Context())
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]int{"removed": n}, Msg: msgSuccess})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(dst); err != nil {
		return errs.ErrInvalidArgument
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		status int
		msg    string
	)
	switch {
	case errors.Is(err, errs.ErrInvalidArgument), errors.Is(err, errs.ErrEmptyCredential):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrAccountNotFound):
		status, msg = http.StatusNotFound, "account not found"
	case errors.Is(err, errs.ErrNoneAvailable):
		status, msg = http.StatusConflict, "no usable cookie, add a fresh one"
	case errors.Is(err, errs.ErrSessionRejected):
		status, msg = http.StatusBadGateway, "session rejected by upstream"
	default:
		log.Error("request failed", zap.Error(err))
		status, msg = http.StatusInternalServerError, "query failed"
	}
	writeJSON(w, status, envelope{Data: struct{}{}, Msg: msg})
}
