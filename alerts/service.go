package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"papertrade/db"
	"papertrade/metrics"
	"papertrade/model"
	"papertrade/protocol"
)

const (
	msgFieldsRequired   = "All fields are required"
	msgConditionInvalid = `Condition must be "above" or "below"`
	msgTargetPositive   = "Target price must be positive"
)

// Notifier delivers a message to every connected client.
type Notifier interface {
	Broadcast(msg protocol.Message) int
}

// Service is the server side of alert management. Every operation is scoped
// to one user.
type Service struct {
	store    db.Store
	notifier Notifier
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store db.Store, notifier Notifier, logger *zap.Logger, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger.Named("alerts"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) List(ctx context.Context, userID string) ([]model.Alert, error) {
	return s.store.Alerts(ctx, userID)
}

func (s *Service) CountActive(ctx context.Context, userID string) (int, error) {
	return s.store.CountActiveAlerts(ctx, userID)
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (model.Alert, error) {
	if err := s.check(req); err != nil {
		return model.Alert{}, err
	}

	now := s.now()
	alert := model.Alert{
		ID:          uuid.NewString(),
		UserID:      userID,
		Symbol:      model.NormalizeSymbol(req.Symbol),
		Name:        req.Name,
		TargetPrice: req.TargetPrice,
		Condition:   model.Condition(req.Condition),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateAlert(ctx, &alert); err != nil {
		return model.Alert{}, err
	}

	s.logger.Info("Alert created",
		zap.String("user", userID), zap.String("symbol", alert.Symbol),
		zap.String("condition", string(alert.Condition)), zap.Float64("target", alert.TargetPrice))
	return alert, nil
}

// check maps validator failures to the messages clients display. A missing
// field wins over any other failure.
func (s *Service) check(req CreateRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msg := ""
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return &ValidationError{Message: msgFieldsRequired}
		}
		if msg != "" {
			continue
		}
		switch fe.Field() {
		case "Condition":
			msg = msgConditionInvalid
		case "TargetPrice":
			msg = msgTargetPositive
		default:
			msg = msgFieldsRequired
		}
	}
	return &ValidationError{Message: msg}
}

// Update applies a partial patch. When the patch sets triggered to true one
// alert_triggered message goes out, whatever state the alert was in before.
// Delivery does not affect the result.
func (s *Service) Update(ctx context.Context, userID, id string, req PatchRequest) (model.Alert, error) {
	var patch db.AlertPatch
	if req.IsActive != nil {
		v := bool(*req.IsActive)
		patch.IsActive = &v
	}
	if req.Triggered != nil {
		v := bool(*req.Triggered)
		patch.Triggered = &v
	}

	alert, err := s.store.UpdateAlert(ctx, userID, id, patch)
	if err != nil {
		return model.Alert{}, err
	}

	if patch.Triggered != nil && *patch.Triggered {
		delivered := s.notifier.Broadcast(protocol.AlertTriggered(alert))
		s.metrics.AlertsTriggered.Inc()
		s.logger.Info("Alert triggered",
			zap.String("id", alert.ID), zap.String("symbol", alert.Symbol),
			zap.Float64("target", alert.TargetPrice), zap.Int("delivered", delivered))
	}
	return alert, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteAlert(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Debug("Alert deleted", zap.String("user", userID), zap.String("id", id))
	return nil
}
