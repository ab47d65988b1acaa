package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/energy-monitor/backend/internal/dashboard"
	"github.com/energy-monitor/backend/internal/logging"
	"github.com/energy-monitor/backend/internal/models"
	"github.com/energy-monitor/backend/internal/registry"
	"github.com/energy-monitor/backend/internal/testutil"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	types []string
}

func (n *recordingNotifier) Broadcast(msgType string, payload any) {
	n.types = append(n.types, msgType)
}

type testServer struct {
	e        *echo.Echo
	store    *testutil.MockStorage
	holder   *dashboard.Holder
	handlers *Handlers
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logging.Discard()
	reg := registry.Default()

	store := testutil.NewMockStorage()
	for i, id := range []string{"SM_B3_RECT", "SM_B4_PRIM", "SM_ECOVILLA"} {
		var records []models.HistoryRecord
		for j := 0; j < 240; j++ {
			records = append(records, models.HistoryRecord{
				Timestamp:          t0.Add(time.Duration(j) * 30 * time.Second),
				ActivePower:        float64((i + 1) * 10),
				TotalPowerFactor:   0.8 + float64(i)*0.05,
				RelativeTHDVoltage: 2,
				Frequency:          60,
			})
		}
		store.AddHistory(id, records...)
	}

	loader := func(ctx context.Context) (*dashboard.Dataset, error) {
		return dashboard.Load(store, reg, logger)
	}
	ds, err := loader(context.Background())
	require.NoError(t, err)
	holder := dashboard.NewHolder(ds)

	deps := &Dependencies{
		Store:    store,
		Registry: reg,
		Holder:   holder,
		Loader:   loader,
		Interval: 30 * time.Second,
		Version:  "test",
		Logger:   logger,
	}
	handlers := NewHandlers(deps)

	e := echo.New()
	SetupMiddleware(e, logger, MiddlewareOptions{})
	RegisterRoutes(e, handlers)

	return &testServer{e: e, store: store, holder: holder, handlers: handlers}
}

func (s *testServer) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, 3.0, body["sensors"])
}

func TestIndicators(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/indicators")
	require.Equal(t, http.StatusOK, rec.Code)

	var inds []dashboard.Indicator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inds))
	require.Len(t, inds, 3)
	assert.Equal(t, "ActivePower", inds[0].ID)
	assert.Equal(t, 100.0, inds[1].Scale)
}

func TestSensors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/sensors")
	require.Equal(t, http.StatusOK, rec.Code)

	var sensors []sensorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensors))
	require.Len(t, sensors, 16)

	withData := 0
	for _, sr := range sensors {
		if sr.HasData {
			withData++
		}
	}
	assert.Equal(t, 3, withData)
	assert.Equal(t, "SM_B3_RECT", sensors[0].ID)
	assert.True(t, sensors[0].HasData)
	assert.Equal(t, "Bloque 03", sensors[0].ShortName)
}

func TestDashboard(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
		check      func(t *testing.T, v dashboard.View)
	}{
		{
			name:       "default indicator",
			target:     "/api/dashboard",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, v dashboard.View) {
				assert.Equal(t, "ActivePower", v.Indicator.ID)
				assert.Equal(t, "Showing Energy Consumption | Options: None", v.Message)
				require.Len(t, v.Ranking, 3)
				assert.Equal(t, "SM_ECOVILLA", v.Ranking[0].SensorID)
				assert.Equal(t, "30.0 kW", v.Ranking[0].ActivePower)
			},
		},
		{
			name:       "power factor with options",
			target:     "/api/dashboard?indicator=TotalPowerFactor&options=labels,heatmap",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, v dashboard.View) {
				assert.Equal(t, "Showing Energy Efficiency | Options: Heat points, Labels", v.Message)
				assert.Len(t, v.Series, 3)
				assert.InDelta(t, 90.0, v.Markers.Max, 1e-9)
				assert.Len(t, v.Bins.Bins, 240)
			},
		},
		{
			name:       "unknown indicator",
			target:     "/api/dashboard?indicator=Voltage",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "unknown option",
			target:     "/api/dashboard?options=satellite",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(http.MethodGet, tt.target)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
				return
			}
			var v dashboard.View
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
			tt.check(t, v)
		})
	}
}

func TestDashboard_EmptyDataset(t *testing.T) {
	s := newTestServer(t)
	s.holder.Swap(dashboard.NewDataset(nil))

	rec := s.do(http.MethodGet, "/api/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)

	var v dashboard.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Empty)
	assert.Equal(t, "No data", v.Message)
}

func TestHistory(t *testing.T) {
	s := newTestServer(t)

	t.Run("full file", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/history/SM_B4_PRIM")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			SensorID  string            `json:"sensor_id"`
			Registros []json.RawMessage `json:"registros"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "SM_B4_PRIM", body.SensorID)
		assert.Len(t, body.Registros, 240)
	})

	t.Run("recent window", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/history/SM_B4_PRIM?hours=0.5")
		require.Equal(t, http.StatusOK, rec.Code)

		var h models.HistoryFile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		require.Len(t, h.Records, 60)
		assert.True(t, h.Records[59].Timestamp.Equal(t0.Add(239*30*time.Second)))
	})

	t.Run("bad hours", func(t *testing.T) {
		tests := []struct {
			hours    string
			wantCode string
		}{
			{"-1", "VALIDATION_ERROR"},
			{"0", "VALIDATION_ERROR"},
			{"NaN", "VALIDATION_ERROR"},
			{"soon", "BAD_REQUEST"},
		}
		for _, tt := range tests {
			rec := s.do(http.MethodGet, "/api/history/SM_B4_PRIM?hours="+tt.hours)
			require.Equal(t, http.StatusBadRequest, rec.Code, tt.hours)
			apiErr := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, apiErr.Code, tt.hours)
			if tt.wantCode == "BAD_REQUEST" {
				assert.Contains(t, apiErr.Details, "soon")
			}
		}
	})

	t.Run("unregistered sensor", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/history/SM_GHOST")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
	})

	t.Run("registered without history", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/history/SM_B10_ARQ")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHistoryMsgpack(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/history/SM_ECOVILLA/msgpack?hours=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var h models.HistoryFile
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "SM_ECOVILLA", h.SensorID)
	require.Len(t, h.Records, 120)
	assert.Equal(t, 30.0, h.Records[0].ActivePower)
}

func TestReload(t *testing.T) {
	s := newTestServer(t)
	notifier := &recordingNotifier{}
	s.handlers.Dashboard.notifier = notifier

	s.store.AddHistory("SM_B10_ARQ", models.HistoryRecord{Timestamp: t0, ActivePower: 99, TotalPowerFactor: 0.9})

	rec := s.do(http.MethodPost, "/api/reload")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary ReloadSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 4, summary.Sensors)
	assert.Equal(t, 721, summary.Records)
	assert.Equal(t, []string{MsgTypeDatasetReloaded}, notifier.types)

	assert.True(t, s.holder.Get().Has("SM_B10_ARQ"))
}

func TestReload_LoaderFailureKeepsSnapshot(t *testing.T) {
	s := newTestServer(t)
	before := s.holder.Get()
	s.handlers.Dashboard.loader = func(ctx context.Context) (*dashboard.Dataset, error) {
		return nil, errors.New("disk on fire")
	}

	rec := s.do(http.MethodPost, "/api/reload")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
	assert.Same(t, before, s.holder.Get())
}

func TestErrorHandler_UnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/nothing-here")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "HTTP_ERROR", decodeError(t, rec).Code)
}
