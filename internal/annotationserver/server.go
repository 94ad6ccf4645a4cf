// Package annotationserver implements a development annotation container: an
// in-memory web-annotation endpoint speaking the same wire protocol the sync
// engine's client consumes. It exists for local testing against a real HTTP
// surface; nothing here persists.
package annotationserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/listenup-bookmarks/internal/annotations"
)

// Server is the in-memory annotation container.
type Server struct {
	router *chi.Mux
	api    huma.API
	logger *slog.Logger

	mu         sync.Mutex
	baseURL    string
	containers map[string][]annotations.Annotation
	nextID     int
}

// New creates the server. baseURL prefixes generated annotation ids so they
// are directly dereferenceable; it may be set later with SetBaseURL.
func New(baseURL string, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	humaConfig := huma.DefaultConfig("Annotation Container", "1.0.0")
	// Sync clients post annotation documents as JSON-LD.
	humaConfig.Formats["application/ld+json"] = huma.DefaultJSONFormat
	api := humachi.New(router, humaConfig)

	s := &Server{
		router:     router,
		api:        api,
		logger:     logger,
		baseURL:    baseURL,
		containers: make(map[string][]annotations.Annotation),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetBaseURL updates the prefix used for generated annotation ids.
func (s *Server) SetBaseURL(baseURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = baseURL
}

type containerPage struct {
	Items []annotations.Annotation `json:"items"`
}

type containerBody struct {
	Context string        `json:"@context"`
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Total   int           `json:"total"`
	First   containerPage `json:"first"`
}

type listAnnotationsInput struct {
	Account string `path:"account"`
}

type listAnnotationsOutput struct {
	Body containerBody
}

type addAnnotationInput struct {
	Account string `path:"account"`
	Body    annotations.Annotation
}

type addAnnotationOutput struct {
	Body annotations.Annotation
}

type deleteAnnotationInput struct {
	Account string `path:"account"`
	ID      string `path:"id"`
}

type deleteAnnotationOutput struct{}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAnnotations",
		Method:      http.MethodGet,
		Path:        "/annotations/{account}",
		Summary:     "List annotations",
		Description: "Returns the account's annotation container",
		Tags:        []string{"Annotations"},
	}, s.handleList)

	huma.Register(s.api, huma.Operation{
		OperationID:   "addAnnotation",
		Method:        http.MethodPost,
		Path:          "/annotations/{account}",
		Summary:       "Add annotation",
		Description:   "Stores an annotation and assigns it an id",
		Tags:          []string{"Annotations"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAdd)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteAnnotation",
		Method:        http.MethodDelete,
		Path:          "/annotations/{account}/{id}",
		Summary:       "Delete annotation",
		Tags:          []string{"Annotations"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDelete)
}

func (s *Server) handleList(ctx context.Context, input *listAnnotationsInput) (*listAnnotationsOutput, error) {
	s.mu.Lock()
	items := append([]annotations.Annotation(nil), s.containers[input.Account]...)
	containerID := s.containerID(input.Account)
	s.mu.Unlock()

	out := &listAnnotationsOutput{}
	out.Body = containerBody{
		Context: annotations.ContextWebAnnotation,
		ID:      containerID,
		Type:    "AnnotationCollection",
		Total:   len(items),
		First:   containerPage{Items: items},
	}
	return out, nil
}

func (s *Server) handleAdd(ctx context.Context, input *addAnnotationInput) (*addAnnotationOutput, error) {
	ann := input.Body
	if ann.Target.Selector.Value == "" {
		return nil, huma.Error422UnprocessableEntity("annotation has no selector value")
	}

	s.mu.Lock()
	s.nextID++
	ann.ID = fmt.Sprintf("%s/%d", s.containerID(input.Account), s.nextID)
	s.containers[input.Account] = append(s.containers[input.Account], ann)
	count := len(s.containers[input.Account])
	s.mu.Unlock()

	s.logger.Debug("annotation stored",
		"account", input.Account,
		"annotation_id", ann.ID,
		"total", count,
	)
	return &addAnnotationOutput{Body: ann}, nil
}

func (s *Server) handleDelete(ctx context.Context, input *deleteAnnotationInput) (*deleteAnnotationOutput, error) {
	target := fmt.Sprintf("%s/%s", s.containerID(input.Account), input.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.containers[input.Account]
	for i, ann := range items {
		if ann.ID == target {
			s.containers[input.Account] = append(items[:i], items[i+1:]...)
			return &deleteAnnotationOutput{}, nil
		}
	}
	return nil, huma.Error404NotFound("annotation not found")
}

// containerID must be called with the lock held.
func (s *Server) containerID(account string) string {
	return s.baseURL + "/annotations/" + account
}
