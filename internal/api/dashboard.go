package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"example.com/fittrack/internal/aggregate"
	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/localstore"
)

// engine returns an aggregation engine for the tz query parameter, or the default zone.
func (h *Handler) engine(r *http.Request) (*aggregate.Engine, error) {
	loc := h.loc
	if tz := r.URL.Query().Get("tz"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return nil, err
		}
		loc = parsed
	}
	return aggregate.New(aggregate.WithLocation(loc), aggregate.WithLogger(h.logger)), nil
}

func (h *Handler) dailyDashboard(w http.ResponseWriter, r *http.Request, userID string) {
	engine, err := h.engine(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown tz")
		return
	}
	date := h.now().In(engine.Location())
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, engine.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	s, ok := h.session(w, r, userID)
	if !ok {
		return
	}
	mirror := s.Mirror()
	nutrition := mirror.Nutrition.Snapshot()
	weights := mirror.Weights.Snapshot()
	profile := mirror.Profile()

	comparison := engine.CompareDays(nutrition, date)
	start, _ := engine.DayWindow(date)
	resp := DailyDashboard{
		Date:           start.Format(time.DateOnly),
		Nutrition:      comparison,
		Donut:          engine.MacroDonut(comparison.Today),
		Targets:        engine.TargetProgress(comparison.Today, aggregate.DefaultTargets()),
		WeeklyCalories: engine.WeeklyCalories(nutrition, date),
		Training:       engine.DailyTraining(mirror.Workouts.Snapshot(), mirror.Joggings.Snapshot(), date),
		WeightTrend:    engine.WeightChange(weights),
	}

	challenge, err := localstore.Get(r.Context(), h.store, localstore.ChallengeKey(userID))
	switch {
	case err == nil:
		if current, ok := engine.CurrentWeight(weights, profile); ok {
			status := engine.ChallengeProgress(challenge, current, h.now())
			resp.Challenge = &status
		}
	case errors.Is(err, localstore.ErrNotFound):
	default:
		h.logger.Printf("load challenge for %s: %v", userID, err)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request, userID string) {
	engine, err := h.engine(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown tz")
		return
	}
	now := h.now().In(engine.Location())
	year, ok := intParam(w, r, "year", now.Year(), 1970, 9999)
	if !ok {
		return
	}
	month, ok := intParam(w, r, "month", int(now.Month()), 1, 12)
	if !ok {
		return
	}

	s, ok := h.session(w, r, userID)
	if !ok {
		return
	}
	mirror := s.Mirror()
	days := engine.Calendar(mirror.Nutrition.Snapshot(), mirror.Workouts.Snapshot(), mirror.Joggings.Snapshot(), year, time.Month(month))
	writeJSON(w, http.StatusOK, CalendarResponse{Year: year, Month: month, Days: days})
}

func (h *Handler) training(w http.ResponseWriter, r *http.Request, userID string) {
	engine, err := h.engine(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown tz")
		return
	}
	now := h.now().In(engine.Location())
	year, ok := intParam(w, r, "year", now.Year(), 1970, 9999)
	if !ok {
		return
	}

	s, ok := h.session(w, r, userID)
	if !ok {
		return
	}
	mirror := s.Mirror()
	hours := engine.MonthlyTrainingHours(mirror.Workouts.Snapshot(), mirror.Joggings.Snapshot(), year)
	month := time.December
	if year == now.Year() {
		month = now.Month()
	}
	writeJSON(w, http.StatusOK, TrainingResponse{
		Year:        year,
		Hours:       hours[:],
		Month:       int(month),
		MonthChange: aggregate.TrainingTrend(hours, month),
	})
}

func (h *Handler) challenge(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID, ok := authorize(w, r, auth.ScopeLogsRead, auth.ScopeLogsWrite)
		if !ok {
			return
		}
		h.getChallenge(w, r, userID)
	case http.MethodPut:
		userID, ok := authorize(w, r, auth.ScopeLogsWrite)
		if !ok {
			return
		}
		h.putChallenge(w, r, userID)
	case http.MethodDelete:
		userID, ok := authorize(w, r, auth.ScopeLogsWrite)
		if !ok {
			return
		}
		if err := localstore.Remove(r.Context(), h.store, localstore.ChallengeKey(userID)); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getChallenge(w http.ResponseWriter, r *http.Request, userID string) {
	challenge, err := localstore.Get(r.Context(), h.store, localstore.ChallengeKey(userID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := ChallengeResponse{Challenge: challenge}

	s, ok := h.session(w, r, userID)
	if !ok {
		return
	}
	engine := aggregate.New(aggregate.WithLocation(h.loc), aggregate.WithLogger(h.logger))
	if current, ok := engine.CurrentWeight(s.Mirror().Weights.Snapshot(), s.Mirror().Profile()); ok {
		status := engine.ChallengeProgress(challenge, current, h.now())
		resp.Status = &status
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) putChallenge(w http.ResponseWriter, r *http.Request, userID string) {
	var challenge domain.Challenge
	if err := json.NewDecoder(r.Body).Decode(&challenge); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if challenge.StartDate.IsZero() {
		challenge.StartDate = h.now().UTC()
	}
	if err := localstore.Put(r.Context(), h.store, localstore.ChallengeKey(userID), challenge); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChallengeResponse{Challenge: challenge})
}

func intParam(w http.ResponseWriter, r *http.Request, name string, fallback, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		writeError(w, http.StatusBadRequest, "validation_failed", name+" is out of range")
		return 0, false
	}
	return v, true
}
