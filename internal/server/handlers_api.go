package server

import (
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fngpulse/fngpulse/internal/domain"
	apperrors "github.com/fngpulse/fngpulse/internal/errors"
)

const defaultStatsDays = 30

type readingResponse struct {
	Value           int    `json:"value"`
	Classification  string `json:"classification"`
	ObservedAt      string `json:"observed_at"`
	TimeUntilUpdate int64  `json:"time_until_update_seconds,omitempty"`
}

func toReadingResponse(r domain.Reading) readingResponse {
	return readingResponse{
		Value:           r.Value,
		Classification:  r.Band(),
		ObservedAt:      r.ObservedAt.Format(time.RFC3339),
		TimeUntilUpdate: int64(r.TimeUntilUpdate.Seconds()),
	}
}

func (s *Server) handleLatest(c echo.Context) error {
	reading, err := s.readings.Latest(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(200, toReadingResponse(reading))
}

func (s *Server) handleHistory(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.ValidationError("limit must be an integer").WithContext("limit", raw)
		}
		limit = parsed
	}

	readings, err := s.readings.History(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	resp := make([]readingResponse, 0, len(readings))
	for _, r := range readings {
		resp = append(resp, toReadingResponse(r))
	}
	return c.JSON(200, map[string]any{"readings": resp})
}

func (s *Server) handleStats(c echo.Context) error {
	days := defaultStatsDays
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return apperrors.ValidationError("days must be a positive integer").WithContext("days", raw)
		}
		days = parsed
	}

	summary, err := s.stats.ByBand(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return c.JSON(200, summary)
}

type subscriptionRequest struct {
	TargetURL       string `json:"target_url"`
	LowerBound      *int   `json:"lower_bound"`
	UpperBound      *int   `json:"upper_bound"`
	OnBandFlip      bool   `json:"on_band_flip"`
	CooldownSeconds int64  `json:"cooldown_seconds"`
}

type subscriptionResponse struct {
	ID              string `json:"id"`
	TargetURL       string `json:"target_url"`
	LowerBound      int    `json:"lower_bound"`
	UpperBound      int    `json:"upper_bound"`
	OnBandFlip      bool   `json:"on_band_flip"`
	CooldownSeconds int64  `json:"cooldown_seconds"`
	CreatedAt       string `json:"created_at"`
}

func toSubscriptionResponse(sub domain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:              sub.ID.String(),
		TargetURL:       sub.TargetURL,
		LowerBound:      sub.LowerBound,
		UpperBound:      sub.UpperBound,
		OnBandFlip:      sub.OnBandFlip,
		CooldownSeconds: int64(sub.Cooldown.Seconds()),
		CreatedAt:       sub.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleCreateSubscription(c echo.Context) error {
	var req subscriptionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	sub, err := subscriptionFromRequest(req)
	if err != nil {
		return err
	}

	created, err := s.subs.Create(c.Request().Context(), sub)
	if err != nil {
		return err
	}
	return c.JSON(201, toSubscriptionResponse(created))
}

func subscriptionFromRequest(req subscriptionRequest) (domain.Subscription, error) {
	u, err := url.Parse(req.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Subscription{}, apperrors.ValidationError("target_url must be an http(s) URL").
			WithContext("target_url", req.TargetURL)
	}
	if req.CooldownSeconds < 0 {
		return domain.Subscription{}, apperrors.ValidationError("cooldown_seconds must not be negative")
	}

	// Absent bounds disable their threshold.
	lower, upper := -1, -1
	if req.LowerBound != nil {
		if *req.LowerBound < 0 || *req.LowerBound > 100 {
			return domain.Subscription{}, apperrors.ValidationError("lower_bound must be between 0 and 100")
		}
		lower = *req.LowerBound
	}
	if req.UpperBound != nil {
		if *req.UpperBound < 0 || *req.UpperBound > 100 {
			return domain.Subscription{}, apperrors.ValidationError("upper_bound must be between 0 and 100")
		}
		upper = *req.UpperBound
	}
	if lower == -1 && upper == -1 && !req.OnBandFlip {
		return domain.Subscription{}, apperrors.ValidationError("subscription needs at least one trigger")
	}

	return domain.Subscription{
		TargetURL:  req.TargetURL,
		LowerBound: lower,
		UpperBound: upper,
		OnBandFlip: req.OnBandFlip,
		Cooldown:   time.Duration(req.CooldownSeconds) * time.Second,
	}, nil
}

func (s *Server) handleListSubscriptions(c echo.Context) error {
	subs, err := s.subs.List(c.Request().Context())
	if err != nil {
		return err
	}

	resp := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, toSubscriptionResponse(sub))
	}
	return c.JSON(200, map[string]any{"subscriptions": resp})
}

func (s *Server) handleGetSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid subscription id")
	}

	sub, err := s.subs.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(200, toSubscriptionResponse(sub))
}

func (s *Server) handleDeleteSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid subscription id")
	}

	if err := s.subs.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(204)
}
