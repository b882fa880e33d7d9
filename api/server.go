package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"olx-price-pipeline/models"
	"olx-price-pipeline/utils"
)

const apiVersion = "1.0.0"

// Server exposes the prediction service over HTTP.
type Server struct {
	addr      string
	predictor *PredictorService
	logger    *utils.Logger
}

// NewServer creates a Server bound to addr.
func NewServer(addr string, predictor *PredictorService, logger *utils.Logger) *Server {
	return &Server{addr: addr, predictor: predictor, logger: logger}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	return r
}

// Run starts serving and blocks until the listener fails.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.logger.Info("[api] Price predictor listening on %s", s.addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Used Car Price Predictor API",
		"version": apiVersion,
	})
}

// handlePredict is the single-record prediction endpoint. Any failure during
// feature assembly or inference is a request-level error; the service itself
// keeps running.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("[api] Panic during prediction: %v", rec)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "internal prediction error",
			})
		}
	}()

	var req models.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "malformed request body: " + err.Error(),
		})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := s.predictor.Predict(&req)
	if err != nil {
		s.logger.Error("[api] Prediction failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "prediction error: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
