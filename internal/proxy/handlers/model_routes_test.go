package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/ccrelay/nexus/internal/db/models"
	"github.com/ccrelay/nexus/internal/router"
	"gorm.io/gorm"
)

func newModelRoutesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := database.AutoMigrate(&models.ModelRoute{}); err != nil {
		t.Fatalf("failed to migrate model routes: %v", err)
	}
	return database
}

func TestCreateModelRouteHandler_DefaultsProviderAndReloadsRouter(t *testing.T) {
	database := newModelRoutesTestDB(t)
	custom := router.NewCustomMapping(database)

	body := `{"client_model":"gpt-4o","target_model":"gemini-3-pro"}`
	req := httptest.NewRequest(http.MethodPost, "/api/model-routes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	CreateModelRouteHandler(database, custom).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"target_provider":"google"`) {
		t.Fatalf("expected target_provider defaulted to google, got %s", rec.Body.String())
	}
	if target, ok := custom.Lookup("gpt-4o"); !ok || target != "gemini-3-pro" {
		t.Fatalf("expected router to pick up the new route immediately, got %q ok=%v", target, ok)
	}
}

func TestCreateModelRouteHandler_RejectsMissingFields(t *testing.T) {
	database := newModelRoutesTestDB(t)
	custom := router.NewCustomMapping(database)

	req := httptest.NewRequest(http.MethodPost, "/api/model-routes", strings.NewReader(`{"client_model":"gpt-4o"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	CreateModelRouteHandler(database, custom).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUpdateModelRouteHandler_ReloadsRouter(t *testing.T) {
	database := newModelRoutesTestDB(t)
	seed := models.ModelRoute{
		ClientModel:    "claude-3-opus",
		TargetProvider: "google",
		TargetModel:    "gemini-3-pro",
		IsActive:       true,
	}
	if err := database.Create(&seed).Error; err != nil {
		t.Fatalf("failed to seed route: %v", err)
	}
	custom := router.NewCustomMapping(database)

	chiRouter := chi.NewRouter()
	chiRouter.Put("/api/model-routes/{id}", UpdateModelRouteHandler(database, custom))

	body := `{"client_model":"claude-3-opus","target_provider":"google","target_model":"gemini-2.5-flash","is_active":true}`
	req := httptest.NewRequest(http.MethodPut, "/api/model-routes/1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	chiRouter.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if target, ok := custom.Lookup("claude-3-opus"); !ok || target != "gemini-2.5-flash" {
		t.Fatalf("expected router reload to see the update, got %q ok=%v", target, ok)
	}
}

func TestDeleteModelRouteHandler_ReloadsRouter(t *testing.T) {
	database := newModelRoutesTestDB(t)
	seed := models.ModelRoute{
		ClientModel:    "gpt-4",
		TargetProvider: "google",
		TargetModel:    "gemini-3-pro",
		IsActive:       true,
	}
	if err := database.Create(&seed).Error; err != nil {
		t.Fatalf("failed to seed route: %v", err)
	}
	custom := router.NewCustomMapping(database)

	chiRouter := chi.NewRouter()
	chiRouter.Delete("/api/model-routes/{id}", DeleteModelRouteHandler(database, custom))

	req := httptest.NewRequest(http.MethodDelete, "/api/model-routes/1", nil)
	rec := httptest.NewRecorder()
	chiRouter.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if _, ok := custom.Lookup("gpt-4"); ok {
		t.Fatalf("expected route removed from router after delete")
	}
}
