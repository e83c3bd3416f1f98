package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MJE43/neon-arcade/internal/games"
	"github.com/MJE43/neon-arcade/internal/profile"
	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:         s.deps.Rounds.Games(),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) knownGame(id string) bool {
	for _, spec := range s.deps.Rounds.Games() {
		if spec.ID == id {
			return true
		}
	}
	return false
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game")
	if !s.knownGame(gameID) {
		s.errorHandler.HandleNotFound(w, r, ErrTypeGameNotFound, fmt.Sprintf("unknown game %q", gameID))
		return
	}

	var req PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}

	snap, err := s.deps.Rounds.PlaceBet(r.Context(), gameID, req.Params, req.Amount)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, RoundResponse{Round: &snap})
}

func (s *Server) balanceResponse(bal decimal.Decimal) BalanceResponse {
	def := s.deps.Wallet.Default()
	return BalanceResponse{Balance: bal, Starting: &def}
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.balanceResponse(s.deps.Wallet.Balance()))
}

func (s *Server) handleResetBalance(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.balanceResponse(s.deps.Wallet.Reset(r.Context())))
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) paging(w http.ResponseWriter, r *http.Request) (page, perPage int, ok bool) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "page", "page must be an integer")
		return 0, 0, false
	}
	perPage, err = queryInt(r, "perPage")
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "perPage", "perPage must be an integer")
		return 0, 0, false
	}
	return page, perPage, true
}

// handleListEntries pages the ledger journal. ref narrows it to one round.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.unavailable(w, r, "ledger journal")
		return
	}
	page, perPage, ok := s.paging(w, r)
	if !ok {
		return
	}
	entries, err := s.deps.History.ListEntries(r.Context(), store.EntriesQuery{
		Ref:     r.URL.Query().Get("ref"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	game := r.URL.Query().Get("game")
	page, perPage, ok := s.paging(w, r)
	if !ok {
		return
	}

	resp := RoundsResponse{Active: []round.Snapshot{}}
	for _, snap := range s.deps.Rounds.Active() {
		if game == "" || snap.GameID == game {
			resp.Active = append(resp.Active, snap)
		}
	}
	if s.deps.History != nil {
		list, err := s.deps.History.ListRounds(r.Context(), store.RoundsQuery{Game: game, Page: page, PerPage: perPage})
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		resp.History = list
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetRound asks the manager first, then history.
func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.deps.Rounds.Round(id)
	if err == nil {
		s.writeJSON(w, http.StatusOK, RoundResponse{Round: &snap})
		return
	}
	if !errors.Is(err, round.ErrRoundNotFound) || s.deps.History == nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	rec, err := s.deps.History.GetRound(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RoundResponse{Record: rec})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		s.errorHandler.HandleValidationError(w, r, "type", "action type is required")
		return
	}
	snap, err := s.deps.Rounds.Step(r.Context(), chi.URLParam(r, "id"), games.Action{Type: req.Type, Args: req.Args})
	s.writeRound(w, r, snap, err)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Rounds.Advance(r.Context(), chi.URLParam(r, "id"))
	s.writeRound(w, r, snap, err)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Rounds.Abandon(r.Context(), chi.URLParam(r, "id"))
	s.writeRound(w, r, snap, err)
}

func (s *Server) writeRound(w http.ResponseWriter, r *http.Request, snap round.Snapshot, err error) {
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RoundResponse{Round: &snap})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Preferences == nil {
		s.writeJSON(w, http.StatusOK, profile.DefaultPreferences)
		return
	}
	prefs, err := s.deps.Preferences.Preferences(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Preferences == nil {
		s.unavailable(w, r, "preferences")
		return
	}
	prefs := profile.DefaultPreferences
	if !s.decode(w, r, &prefs) {
		return
	}
	if err := s.deps.Preferences.SavePreferences(r.Context(), prefs); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleAutoplayState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Autoplay == nil {
		s.unavailable(w, r, "autoplay")
		return
	}
	s.writeJSON(w, http.StatusOK, AutoplayResponse{State: s.deps.Autoplay.GetState()})
}

func (s *Server) handleStartAutoplay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Autoplay == nil {
		s.unavailable(w, r, "autoplay")
		return
	}
	var req AutoplayRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Script == "" {
		s.errorHandler.HandleValidationError(w, r, "script", "script is required")
		return
	}
	if err := s.deps.Autoplay.Start(req.Script); err != nil {
		s.autoplayError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, AutoplayResponse{State: s.deps.Autoplay.GetState()})
}

func (s *Server) handleStopAutoplay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Autoplay == nil {
		s.unavailable(w, r, "autoplay")
		return
	}
	if err := s.deps.Autoplay.Stop(); err != nil {
		s.autoplayError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AutoplayResponse{State: s.deps.Autoplay.GetState()})
}

func (s *Server) autoplayError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r, NewError(ErrTypeAutoplay, err.Error()).
		WithContext("path", r.URL.Path).
		Build())
}

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, feature string) {
	engineErr := NewError(ErrTypeServiceUnavailable, feature+" is not enabled").
		WithContext("path", r.URL.Path).
		Build()
	writeErrorResponse(w, http.StatusServiceUnavailable, engineErr)
}
