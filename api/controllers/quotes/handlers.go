package quotes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/portal-crm-backend/api/middleware"
	"github.com/angelmondragon/portal-crm-backend/api/responses"
	"github.com/angelmondragon/portal-crm-backend/api/validators"
	internalquotes "github.com/angelmondragon/portal-crm-backend/internal/quotes"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	"github.com/angelmondragon/portal-crm-backend/pkg/pagination"
)

const maxSearchLength = 100

// List returns a filtered page of quotes.
func List(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters := internalquotes.ListFilters{
			Search: validators.SanitizeString(r.URL.Query().Get("search"), maxSearchLength),
		}
		if filters.Status, err = validators.ParseQuery(r, "status", "invalid status filter", enums.ParseQuoteStatus); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.OwnerID, err = validators.ParseQueryUUID(r, "owner_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), pagination.Params{Page: page, Limit: limit}, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, quoteListResponse{
			Quotes:     internalquotes.NewQuoteDTOs(list.Quotes),
			Pagination: list.Pagination,
		})
	}
}

// Detail returns a single quote.
func Detail(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		quoteID, err := parseQuoteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Get(r.Context(), quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalquotes.NewQuoteDTO(*quote))
	}
}

// Create stores a new draft quote. Any status in the payload is ignored.
func Create(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createQuoteRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Create(r.Context(), actor, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalquotes.NewQuoteDTO(*quote))
	}
}

// Update edits a draft quote. Status changes must use the status route.
func Update(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quoteID, err := parseQuoteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateQuoteRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Status != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status cannot be changed here").
				WithDetails(map[string]string{"status": "use PATCH /api/quotes/{quoteId}/status"}))
			return
		}

		quote, err := svc.Update(r.Context(), actor, quoteID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalquotes.NewQuoteDTO(*quote))
	}
}

// Delete removes a draft quote.
func Delete(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quoteID, err := parseQuoteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), actor, quoteID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// UpdateStatus moves a quote along the lifecycle.
func UpdateStatus(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quoteID, err := parseQuoteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statusRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Transition(r.Context(), actor, quoteID, enums.QuoteStatus(strings.TrimSpace(payload.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalquotes.NewQuoteDTO(*quote))
	}
}

// Clone creates the next revision of a quote.
func Clone(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quoteID, err := parseQuoteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		revision, err := svc.Clone(r.Context(), actor, quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalquotes.NewQuoteDTO(*revision))
	}
}

// ConvertToDeal links an accepted quote to a deal. Repeat calls return the
// existing deal unless strict=true, which reports ALREADY_CONVERTED instead.
func ConvertToDeal(svc internalquotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quoteID, err := parseQuoteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		strict, err := validators.ParseQueryBool(r, "strict", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConvertToDeal(r.Context(), actor, quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.AlreadyConverted && strict {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAlreadyConverted, "quote already converted").
				WithDetails(map[string]string{"deal_id": result.DealID.String()}))
			return
		}

		status := http.StatusCreated
		if result.AlreadyConverted {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, conversionResponse{
			QuoteID:          result.QuoteID,
			DealID:           result.DealID,
			AlreadyConverted: result.AlreadyConverted,
		})
	}
}

func parseQuoteID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "quoteId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quote id")
	}
	return id, nil
}

func actorFromRequest(r *http.Request) (internalquotes.Actor, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || principal.UserID == uuid.Nil {
		return internalquotes.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	if !principal.Role.IsValid() {
		return internalquotes.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid role")
	}
	return internalquotes.Actor{UserID: principal.UserID, Role: principal.Role}, nil
}
