package person

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mehmetcc/tenantcore/internal/httpx"
	"github.com/mehmetcc/tenantcore/pkg/id"
	"go.uber.org/zap"
)

type PersonHandler interface {
	Get(w http.ResponseWriter, r *http.Request)
	Routes() chi.Router
}

type personHandler struct {
	repo   PersonRepo
	logger *zap.Logger
}

// NewPersonHandler serves read-only person lookups. Access control is
// left to the router.
func NewPersonHandler(repo PersonRepo, logger *zap.Logger) PersonHandler {
	return &personHandler{
		repo:   repo,
		logger: logger,
	}
}

func (p *personHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{publicID}", p.Get)
	return r
}

func (p *personHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	publicID, err := id.ParsePublicID(chi.URLParam(r, "publicID"))
	if err != nil {
		notFound(w)
		return
	}

	rec, err := p.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		p.logger.Error("failed to load person", zap.String("public_id", string(publicID)), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorResponse[any]{
			Code:    httpx.ErrInternal,
			Message: "internal server error",
		})
		return
	}
	if rec == nil || rec.IsDeleted {
		notFound(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, rec)
}

func notFound(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusNotFound, httpx.ErrorResponse[any]{
		Code:    httpx.ErrNotFound,
		Message: "person not found",
	})
}
