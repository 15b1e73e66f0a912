package api

import (
	"fmt"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Categories are read-only over the API. The tree is maintained with the
// importcategories command.

// RegisterPublicCategoryRoutes registers the public category routes to the router.
func (a *API) RegisterPublicCategoryRoutes(r chi.Router) {
	log.Info().Msg("register route GET /categories")
	r.Get("/categories", a.routerHandler(a.getCategoriesHandler))

	log.Info().Msg("register route GET /categories/{categoryId}")
	r.Get("/categories/{categoryId}", a.routerHandler(a.getCategoryHandler))
}

func (a *API) categoryIDFromRequest(r *Request) (int64, error) {
	idParam := r.Context.URLParam("categoryId")
	if idParam == nil {
		return 0, fmt.Errorf("missing categoryId")
	}
	return strconv.ParseInt(idParam[0], 10, 64)
}

// getCategoriesHandler returns the full category tree as a flat list.
func (a *API) getCategoriesHandler(r *Request) (interface{}, error) {
	categories, err := a.database.CategoryService.GetAllCategories(r.Context.Request.Context())
	if err != nil {
		return nil, fromDBError(err)
	}
	return categories, nil
}

// getCategoryHandler returns a single category by its numeric id.
func (a *API) getCategoryHandler(r *Request) (interface{}, error) {
	id, err := a.categoryIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	category, err := a.database.CategoryService.GetCategoryByID(r.Context.Request.Context(), id)
	if err != nil {
		return nil, fromDBError(err)
	}
	return category, nil
}
