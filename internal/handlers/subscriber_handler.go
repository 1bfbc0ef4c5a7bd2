package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/apperr"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
)

// RequestIDHeader echoes the request-scoped identifier back to the caller.
const RequestIDHeader = "X-Request-Id"

// Subscriber is the part of the service layer the handler depends on.
type Subscriber interface {
	Subscribe(ctx context.Context, req models.SubscriptionRequest) (*models.Subscriber, error)
}

type SubscriptionHandler struct {
	service Subscriber
	logger  *logging.ContextLogger
	tracer  trace.Tracer
}

func NewSubscriptionHandler(service Subscriber, logger *logging.ContextLogger, tp trace.TracerProvider) *SubscriptionHandler {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &SubscriptionHandler{
		service: service,
		logger:  logger,
		tracer:  tp.Tracer("subscription-handler"),
	}
}

// Subscribe handles POST /subscriptions. Responses never carry a body: 400
// when a form field is missing, 500 when the record could not be stored.
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	req, err := decodeSubscription(c)
	if err != nil {
		h.logger.WarnWithTracing(c.Request.Context(), "Rejected subscription form", logrus.Fields{
			"error":    err.Error(),
			"endpoint": "POST /subscriptions",
		})
		c.Status(apperr.HTTPStatus(err))
		return
	}

	requestID := uuid.New().String()
	c.Header(RequestIDHeader, requestID)

	ctx, span := h.tracer.Start(c.Request.Context(), "subscription.handler.subscribe",
		trace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.String("subscriber.name", req.Name),
			attribute.String("subscriber.email", req.Email),
		))
	defer span.End()

	ctx = logging.NewContext(ctx, h.logger.WithFields(logrus.Fields{
		"request_id":       requestID,
		"subscriber_name":  req.Name,
		"subscriber_email": req.Email,
	}))

	h.logger.InfoWithTracing(ctx, "Adding a new subscriber", nil)

	subscriber, err := h.service.Subscribe(ctx, req)
	if err != nil {
		h.logger.ErrorWithTracing(ctx, "Failed to save new subscriber", err, logrus.Fields{
			"failure_kind": apperr.KindOf(err).String(),
			"endpoint":     "POST /subscriptions",
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failure")
		c.Status(apperr.HTTPStatus(err))
		return
	}

	span.SetAttributes(
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.Bool("success", true),
	)

	c.Status(http.StatusOK)
}

// decodeSubscription maps the url-encoded body onto a SubscriptionRequest.
// A field counts as supplied when its key is present, even with an empty value.
func decodeSubscription(c *gin.Context) (models.SubscriptionRequest, error) {
	var req models.SubscriptionRequest
	if err := c.ShouldBindWith(&req, binding.FormPost); err != nil {
		return req, apperr.ClientInput("subscription.decode", err)
	}
	for _, field := range []string{"name", "email"} {
		if _, ok := c.Request.PostForm[field]; !ok {
			return req, apperr.ClientInput("subscription.decode", fmt.Errorf("missing form field %q", field))
		}
	}
	return req, nil
}
