package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"flight-deals/internal/domain"
	"flight-deals/internal/service"
	"flight-deals/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	userIDHeader    = "X-User-ID"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := s.echo.Group("/api")

	d := api.Group("/deals")
	d.POST("/analyze/:flightId", s.handleAnalyzeFlight)
	d.POST("/analyze-recent", s.handleAnalyzeRecent)
	d.POST("/reevaluate", s.handleReevaluate)
	d.GET("", s.handleListDeals)
	d.GET("/featured", s.handleFeaturedDeals)
	d.GET("/:id", s.handleGetDeal)

	n := api.Group("/notifications")
	n.POST("/process", s.handleProcess)
	n.POST("/weekly-digest", s.handleWeeklyDigest)
	n.GET("/track/open/:id", s.handleTrackOpen)
	n.GET("/track/click/:id", s.handleTrackClick)
	n.GET("", s.handleListNotifications)
	n.PUT("/:id/read", s.handleMarkRead)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Time: s.now()})
}

func (s *Server) handleAnalyzeFlight(c echo.Context) error {
	flightID, err := pathID(c, "flightId")
	if err != nil {
		return err
	}
	s.runAsync("analyze_flight", func(ctx context.Context) error {
		res, err := s.evaluator.EvaluateFlight(ctx, flightID)
		if err != nil {
			return err
		}
		if res == nil {
			s.logger.Warn().Int64("flight_id", flightID).Msg("flight not found for analysis")
		}
		return nil
	})
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: fmt.Sprintf("analysis started for flight %d", flightID)})
}

func (s *Server) handleAnalyzeRecent(c echo.Context) error {
	s.runJob(service.JobAnalyze)
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "analysis of recent flights started"})
}

func (s *Server) handleReevaluate(c echo.Context) error {
	s.runJob(service.JobReevaluate)
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "re-evaluation of active deals started"})
}

func (s *Server) handleProcess(c echo.Context) error {
	s.runJob(service.JobDrain)
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "processing pending notifications"})
}

func (s *Server) handleWeeklyDigest(c echo.Context) error {
	s.runJob(service.JobDigest)
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "weekly digest started"})
}

// runJob hands a batch job to the job runner so a manual trigger never overlaps a scheduled run.
func (s *Server) runJob(name string) {
	s.runAsync(name, func(ctx context.Context) error {
		return s.jobs.RunJob(ctx, name)
	})
}

// handleTrackOpen always serves the pixel.
func (s *Server) handleTrackOpen(c echo.Context) error {
	if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
		s.dispatcher.RecordOpened(c.Request().Context(), id)
	}
	h := c.Response().Header()
	h.Set(echo.HeaderCacheControl, "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
	return c.Blob(http.StatusOK, "image/gif", transparentGIF)
}

// handleTrackClick always redirects, even for unknown ids.
func (s *Server) handleTrackClick(c echo.Context) error {
	if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
		s.dispatcher.RecordClicked(c.Request().Context(), id)
	}
	return c.Redirect(http.StatusFound, s.redirectTarget(c.QueryParam("redirect")))
}

// redirectTarget only follows links back to the frontend's host.
func (s *Server) redirectTarget(raw string) string {
	fallback := s.opts.FrontendURL
	if fallback == "" {
		fallback = "/"
	}
	if raw == "" {
		return fallback
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return fallback
	}
	front, err := url.Parse(s.opts.FrontendURL)
	if err != nil || front.Host == "" || !strings.EqualFold(front.Host, target.Host) {
		return fallback
	}
	return target.String()
}

func (s *Server) handleListDeals(c echo.Context) error {
	filter, err := dealFilter(c)
	if err != nil {
		return err
	}
	filter.ActiveAt = s.now()
	return s.listDeals(c, filter)
}

func (s *Server) handleFeaturedDeals(c echo.Context) error {
	limit, offset, err := paging(c)
	if err != nil {
		return err
	}
	return s.listDeals(c, storage.DealFilter{ActiveAt: s.now(), FeaturedOnly: true, Limit: limit, Offset: offset})
}

func (s *Server) listDeals(c echo.Context, filter storage.DealFilter) error {
	ctx := c.Request().Context()
	items, err := s.deals.ListDeals(ctx, filter)
	if err != nil {
		return err
	}
	total, err := s.deals.CountDeals(ctx, filter)
	if err != nil {
		return err
	}

	resp := dealListResponse{Deals: make([]dealResponse, 0, len(items)), Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for _, d := range items {
		resp.Deals = append(resp.Deals, newDealResponse(d))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetDeal(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	d, err := s.deals.GetDeal(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDealResponse(d))
}

func (s *Server) handleListNotifications(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	limit, offset, err := paging(c)
	if err != nil {
		return err
	}

	filter := storage.NotificationFilter{
		UserID: userID,
		Status: domain.NotificationStatus(c.QueryParam("status")),
		Limit:  limit,
		Offset: offset,
	}
	items, total, err := s.dispatcher.ListForUser(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	resp := notificationListResponse{Notifications: make([]notificationResponse, 0, len(items)), Total: total, Limit: limit, Offset: offset}
	for _, n := range items {
		resp.Notifications = append(resp.Notifications, newNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.dispatcher.MarkRead(c.Request().Context(), userID, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// requireUser reads the caller identity set by the upstream auth proxy.
func requireUser(c echo.Context) (int64, error) {
	raw := c.Request().Header.Get(userIDHeader)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid "+userIDHeader)
	}
	return id, nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return id, nil
}

func paging(c echo.Context) (int, int, error) {
	limit, err := intParam(c, "limit", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if limit <= 0 || limit > maxPageSize {
		return 0, 0, &domain.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", maxPageSize)}
	}
	if offset < 0 {
		return 0, 0, &domain.ValidationError{Field: "offset", Reason: "cannot be negative"}
	}
	return limit, offset, nil
}

func dealFilter(c echo.Context) (storage.DealFilter, error) {
	limit, offset, err := paging(c)
	if err != nil {
		return storage.DealFilter{}, err
	}
	minDiscount, err := intParam(c, "min_discount", 0)
	if err != nil {
		return storage.DealFilter{}, err
	}
	if minDiscount < 0 || minDiscount > 100 {
		return storage.DealFilter{}, &domain.ValidationError{Field: "min_discount", Reason: "must be between 0 and 100"}
	}
	return storage.DealFilter{
		Origin:      strings.ToUpper(c.QueryParam("origin")),
		Destination: strings.ToUpper(c.QueryParam("destination")),
		Airline:     strings.ToUpper(c.QueryParam("airline")),
		MinDiscount: minDiscount,
		Limit:       limit,
		Offset:      offset,
	}, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return v, nil
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}
