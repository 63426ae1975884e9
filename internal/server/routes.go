package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/pushgate/internal/auth"
	"github.com/danmuck/pushgate/internal/gateway"
	"github.com/danmuck/pushgate/internal/payload"
	"github.com/danmuck/pushgate/internal/protocol/wire"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type notificationRequest struct {
	Tokens   []string         `json:"tokens"`
	Payloads []map[string]any `json:"payloads"`
	Token    string           `json:"token"`
	Payload  map[string]any   `json:"payload"`
}

type feedbackRecord struct {
	Token       string    `json:"token"`
	Timestamp   time.Time `json:"timestamp"`
	TokenLength uint16    `json:"token_length"`
}

var errBadRequest = errors.New("bad request")

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"uptime":      time.Since(s.appeared).String(),
			"service":     "pushgate",
			"version":     Version,
			"environment": s.gw.Environment(),
			"gateway":     s.gw.State().String(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	if s.opts.Validator != nil {
		v1.Use(auth.Middleware(s.opts.Validator))
	}
	v1.POST("/notifications", s.postNotifications)
	v1.GET("/feedback", s.getFeedback)
	v1.GET("/feedback/stored", s.getStoredFeedback)
}

func (s *Server) postNotifications(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	tokens, bodies, err := req.decode()
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	f, err := s.gw.Write(tokens, bodies)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	ctx, cancel := s.waitContext(c)
	defer cancel()
	ack, err := f.Wait(ctx)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":        "sent",
		"request_id":    ack.RequestID,
		"notifications": len(tokens),
		"bytes":         ack.Bytes,
		"sent_at":       ack.SentAt,
	})
}

func (s *Server) getFeedback(c *gin.Context) {
	ctx, cancel := s.waitContext(c)
	defer cancel()
	records, err := s.gw.Read().Wait(ctx)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}

	stored := false
	if s.store != nil && len(records) > 0 {
		if err := s.store.Put(c.Request.Context(), records); err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
		stored = true
	}

	out := make([]feedbackRecord, 0, len(records))
	for _, r := range records {
		out = append(out, feedbackRecord{Token: r.Token.String(), Timestamp: r.Timestamp, TokenLength: r.TokenLen})
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(out),
		"records": out,
		"stored":  stored,
	})
}

func (s *Server) getStoredFeedback(c *gin.Context) {
	if s.store == nil {
		s.fail(c, http.StatusNotFound, errors.New("feedback store not configured"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(c, http.StatusBadRequest, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw))
			return
		}
		limit = n
	}
	entries, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	total, err := s.store.Len(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"total":   total,
		"entries": entries,
	})
}

func (r notificationRequest) decode() ([]wire.Token, [][]byte, error) {
	raw := r.Tokens
	if r.Token != "" {
		raw = append(raw, r.Token)
	}
	dicts := r.Payloads
	if r.Payload != nil {
		dicts = append(dicts, r.Payload)
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("%w: no tokens", errBadRequest)
	}

	tokens := make([]wire.Token, 0, len(raw))
	for _, hex := range raw {
		tok, err := wire.ParseToken(hex)
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, tok)
	}
	bodies := make([][]byte, 0, len(dicts))
	for _, d := range dicts {
		p, err := payload.FromMap(d)
		if err != nil {
			return nil, nil, err
		}
		bodies = append(bodies, p.JSON())
	}
	return tokens, bodies, nil
}

func (s *Server) waitContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.opts.WaitTimeout)
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error":      err.Error(),
		"outcome":    gateway.Outcome(err),
		"request_id": c.GetString("request_id"),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrArityMismatch),
		errors.Is(err, gateway.ErrPayloadTooLarge),
		errors.Is(err, gateway.ErrEmptyBatch),
		errors.Is(err, payload.ErrTooLarge),
		errors.Is(err, wire.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, gateway.ErrConnectFailed), errors.Is(err, gateway.ErrConnectionLost):
		return http.StatusBadGateway
	case errors.Is(err, gateway.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
