package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roman-kulish/flight-instruments/internal/chart"
	"github.com/roman-kulish/flight-instruments/internal/dashboard"
	"github.com/roman-kulish/flight-instruments/internal/instrument"
	"github.com/roman-kulish/flight-instruments/internal/media"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

const maxBodySize = 64 << 10

var (
	errMissingGeometry = errors.New("missing asset geometry")
	errNoLibrary       = errors.New("media library not configured")
	errNoCamera        = errors.New("camera not configured")
)

// MediaList is the body of GET /api/media
type MediaList struct {
	Objs []media.Item `json:"objs"`
}

// ElementGeometry is the geometry of a single drawing element reported by
// the browser once an instrument asset has loaded
type ElementGeometry struct {
	BBox      instrument.BBox `json:"bbox"`
	Transform string          `json:"transform"`
}

// AssetLoaded is the body of the asset loaded signal
type AssetLoaded struct {
	Elements map[string]ElementGeometry `json:"elements"`
}

// SettingsUpdate is the body of PUT /api/settings
type SettingsUpdate struct {
	DetectorEnabled *bool  `json:"detectorEnabled"`
	Resolution      string `json:"resolution"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := s.index.ExecuteTemplate(&buf, "index", map[string]any{
		"state":   s.dashboard.Binder().Snapshot(),
		"streams": []string{StreamAttitude, StreamStatus, StreamIMU, StreamChart},
		"now":     time.Now(),
	})
	if err != nil {
		s.fail(w, http.StatusInternalServerError, fmt.Errorf("rendering index: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.dashboard.Binder().Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"updatedAt":     state.UpdatedAt,
		"droppedEvents": s.dashboard.DroppedEvents(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dashboard.Binder().Snapshot())
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	s.dashboard.Arm()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDisarm(w http.ResponseWriter, r *http.Request) {
	s.dashboard.Disarm()
	w.WriteHeader(http.StatusAccepted)
}

// handleComeHere sends the position posted by the browser. An empty body
// means the browser has no geolocation API, only then the fallback locator
// is asked.
func (s *Server) handleComeHere(w http.ResponseWriter, r *http.Request) {
	var p telemetry.Position
	ok, err := s.decodeOptional(r, &p)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	if !ok {
		s.writeJSON(w, http.StatusAccepted, map[string]bool{"sent": s.comeHereFallback(r)})
		return
	}

	if err = p.Validate(); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if s.reporter != nil {
		if err = s.reporter.Report(p); err != nil {
			s.fail(w, http.StatusBadRequest, err)
			return
		}
	}

	s.writeJSON(w, http.StatusAccepted, map[string]bool{"sent": s.dashboard.ComeHereAt(p)})
}

func (s *Server) comeHereFallback(r *http.Request) bool {
	if s.fallback == nil {
		s.logger.Debug("come here ignored: no position and no fallback")
		return false
	}

	p, err := s.fallback.CurrentPosition(r.Context())
	if err != nil {
		s.logger.Debug(fmt.Sprintf("come here ignored: %s", err.Error()))
		return false
	}
	return s.dashboard.ComeHereAt(p)
}

func (s *Server) handleAssetLoaded(w http.ResponseWriter, r *http.Request) {
	var body AssetLoaded
	ok, err := s.decodeOptional(r, &body)
	if err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid asset geometry: %w", err))
		return
	}
	if !ok {
		s.fail(w, http.StatusBadRequest, errMissingGeometry)
		return
	}

	doc := make(instrument.Elements, len(body.Elements))
	for id, el := range body.Elements {
		doc[id] = instrument.NewElement(el.BBox, el.Transform)
	}

	switch asset := r.PathValue("asset"); asset {
	case "compass":
		err = s.dashboard.LoadCompass(r.Context(), doc)
	case "attitude":
		err = s.dashboard.LoadAttitude(r.Context(), doc)
	default:
		s.fail(w, http.StatusNotFound, fmt.Errorf("unknown asset '%s'", asset))
		return
	}

	switch {
	case errors.Is(err, instrument.ErrAlreadyLoaded):
		s.fail(w, http.StatusConflict, err)
	case errors.Is(err, instrument.ErrElementNotFound):
		s.fail(w, http.StatusUnprocessableEntity, err)
	case err != nil:
		s.fail(w, http.StatusServiceUnavailable, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleChartSurface(w http.ResponseWriter, r *http.Request) {
	var err error
	switch state := r.PathValue("state"); state {
	case "attached":
		err = s.dashboard.AttachChart(r.Context())
	case "detached":
		err = s.dashboard.DetachChart(r.Context())
	default:
		s.fail(w, http.StatusNotFound, fmt.Errorf("unknown chart state '%s'", state))
		return
	}
	if err != nil {
		s.fail(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.dashboard.Settings(r.Context())
	if err != nil {
		s.fail(w, settingsStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body SettingsUpdate
	if _, err := s.decodeOptional(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	if body.DetectorEnabled != nil {
		if err := s.dashboard.SetDetectorEnabled(r.Context(), *body.DetectorEnabled); err != nil {
			s.fail(w, settingsStatus(err), err)
			return
		}
	}
	if err := s.dashboard.SetResolution(r.Context(), body.Resolution); err != nil {
		s.fail(w, settingsStatus(err), err)
		return
	}

	s.handleGetSettings(w, r)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		s.fail(w, http.StatusNotImplemented, errNoLibrary)
		return
	}

	items, err := s.library.List()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MediaList{Objs: items})
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	img, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img.Data)
}

func (s *Server) handleTakePicture(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		s.fail(w, http.StatusNotImplemented, errNoLibrary)
		return
	}

	img, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	item, err := s.library.Save(img)
	switch {
	case errors.Is(err, media.ErrUnsupported):
		s.fail(w, http.StatusUnsupportedMediaType, err)
	case err != nil:
		s.fail(w, http.StatusInternalServerError, err)
	default:
		s.writeJSON(w, http.StatusCreated, item)
	}
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (media.Image, bool) {
	if s.camera == nil {
		s.fail(w, http.StatusNotImplemented, errNoCamera)
		return media.Image{}, false
	}

	img, err := s.camera.Snapshot(r.Context())
	switch {
	case errors.Is(err, media.ErrNoImage):
		s.fail(w, http.StatusServiceUnavailable, err)
		return media.Image{}, false
	case err != nil:
		s.fail(w, http.StatusBadGateway, err)
		return media.Image{}, false
	}
	return img, true
}

func (s *Server) handleCompassPNG(w http.ResponseWriter, r *http.Request) {
	s.writePNG(w, s.dashboard.RenderCompass)
}

func (s *Server) handleAttitudePNG(w http.ResponseWriter, r *http.Request) {
	s.writePNG(w, s.dashboard.RenderAttitude)
}

func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	s.writePNG(w, func(w io.Writer) error {
		return s.dashboard.RenderChart(w, s.chartWidth, s.chartHeight)
	})
}

func (s *Server) writePNG(w http.ResponseWriter, render func(w io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		switch {
		case errors.Is(err, dashboard.ErrNoRaster):
			s.fail(w, http.StatusNotFound, err)
		case errors.Is(err, chart.ErrNotEnoughPoints):
			w.WriteHeader(http.StatusNoContent)
		default:
			s.fail(w, http.StatusInternalServerError, err)
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// decodeOptional decodes a JSON body into v. It reports false for an
// empty body.
func (s *Server) decodeOptional(r *http.Request, v any) (bool, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("decoding request body: %w", err)
	}
	return true, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, fmt.Errorf("encoding response: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error(err.Error())
	} else {
		s.logger.Debug(err.Error())
	}
	http.Error(w, err.Error(), status)
}

func settingsStatus(err error) int {
	if errors.Is(err, dashboard.ErrNoParams) {
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}
