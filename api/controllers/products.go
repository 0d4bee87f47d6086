package controllers

import (
	"net/http"

	"github.com/angelmondragon/portal-crm-backend/api/responses"
	productsvc "github.com/angelmondragon/portal-crm-backend/internal/products"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
)

// ListActiveProducts returns the catalog used to prefill quote items.
func ListActiveProducts(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		products, err := svc.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"products": products})
	}
}
