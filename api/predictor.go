package api

import (
	"fmt"
	"strings"

	"olx-price-pipeline/ml"
	"olx-price-pipeline/models"
	"olx-price-pipeline/services"
	"olx-price-pipeline/utils"
)

// PredictorService answers single-record price predictions against a loaded
// training artifact. It is constructed explicitly and injected into the HTTP
// handlers; the artifact is read-only after load, so one instance is safely
// shared across concurrent requests without locking.
type PredictorService struct {
	pipeline *ml.Pipeline
	features *services.FeatureBuilder
	logger   *utils.Logger
}

// NewPredictorService loads the artifact from modelPath. A missing or
// unreadable artifact is a fatal service-level error.
func NewPredictorService(modelPath string, logger *utils.Logger) (*PredictorService, error) {
	pipeline, err := ml.Load(modelPath)
	if err != nil {
		return nil, fmt.Errorf("predictor: model not loaded (run the train stage first): %w", err)
	}

	logger.Info("[predictor] Loaded artifact %s — %d training rows, %d columns, trained %s",
		modelPath, pipeline.TrainedRows, len(pipeline.Schema),
		pipeline.TrainedAt.Format("2006-01-02 15:04:05"))

	return &PredictorService{
		pipeline: pipeline,
		// The serving path reuses the training-side feature arithmetic,
		// anchored at the artifact's reference year.
		features: services.NewFeatureBuilder(logger, pipeline.CurrentYear),
		logger:   logger,
	}, nil
}

// Predict computes the predicted price for one request. The request's brand
// and state are bucketed through the vocabulary captured at training time;
// expected columns absent from the request fall back to defaults instead of
// failing.
func (s *PredictorService) Predict(req *models.PredictionRequest) (*models.PredictionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	row := s.features.BuildRow(s.toListing(req), &s.pipeline.Vocabulary, s.pipeline.Schema)
	price, logPrice := s.pipeline.PredictPrice(row)

	s.logger.Debug("[predictor] brand=%s state=%s year=%.0f → R$ %.2f",
		req.Brand, req.State, req.Year, price)

	return &models.PredictionResponse{
		PredictedPrice:    price,
		PredictedPriceLog: logPrice,
		Currency:          "BRL",
	}, nil
}

// toListing maps the request onto the cleaned-listing shape so the shared
// FeatureBuilder can derive the model input from it.
func (s *PredictorService) toListing(req *models.PredictionRequest) *models.Listing {
	l := &models.Listing{
		Year:         int(req.Year),
		Mileage:      req.Mileage,
		EngineSize:   req.EngineSize,
		Power:        req.Power,
		PlateDigit:   req.PlateDigit,
		Brand:        optNonEmpty(req.Brand),
		State:        strings.ToUpper(strings.TrimSpace(req.State)),
		Transmission: req.Transmission,
		Fuel:         req.Fuel,
		Color:        req.Color,
		Steering:     req.Steering,
		VehicleType:  req.VehicleType,
		Category:     req.Category,
		GNVKit:       req.GNVKit,
		Options:      req.Flags,
	}
	if req.Doors != nil {
		doors := int(*req.Doors)
		l.Doors = &doors
	}
	return l
}

func optNonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
