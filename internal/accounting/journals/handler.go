package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/export"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the journal endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the journals handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validate: validator.New()}
}

// MountRoutes registers journal routes. All routes require an active company
// scope set by the company context middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("journals.view"))
		r.Get("/", h.list)
		r.Get("/export.csv", h.exportCSV)
		r.Get("/export.xlsx", h.exportXLSX)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("journals.post"))
		r.Post("/", h.post)
		r.Post("/{id}/void", h.void)
		r.Post("/{id}/reverse", h.reverse)
	})
}

type journalLineRequest struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Currency  string `json:"currency" validate:"omitempty,len=3"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	BranchID  *int64 `json:"branch_id"`
}

type postJournalRequest struct {
	PeriodID     int64                `json:"period_id" validate:"required"`
	Date         string               `json:"date" validate:"required,datetime=2006-01-02"`
	SourceModule string               `json:"source_module" validate:"required,max=40"`
	SourceID     string               `json:"source_id" validate:"required,uuid"`
	Memo         string               `json:"memo" validate:"max=500"`
	Lines        []journalLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type reverseRequest struct {
	Memo       string `json:"memo" validate:"max=500"`
	Override   bool   `json:"override"`
	TargetDate string `json:"target_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	principal := internalShared.PrincipalFromContext(r.Context())
	if companyID == 0 || principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	var req postJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	input, err := h.toPostingInput(companyID, principal.UserID, req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	entry, err := h.service.PostJournal(r.Context(), input)
	if err != nil {
		h.respondErr(w, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) toPostingInput(companyID, actorID int64, req postJournalRequest) (PostingInput, error) {
	date, _ := time.Parse("2006-01-02", req.Date)
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		return PostingInput{}, errors.New("source_id must be a UUID")
	}
	lines := make([]PostingLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		debit, err := parseAmount(l.Debit)
		if err != nil {
			return PostingInput{}, errors.New("debit must be a decimal string")
		}
		credit, err := parseAmount(l.Credit)
		if err != nil {
			return PostingInput{}, errors.New("credit must be a decimal string")
		}
		lines = append(lines, PostingLineInput{
			AccountID: l.AccountID,
			Currency:  l.Currency,
			Debit:     debit,
			Credit:    credit,
			BranchID:  l.BranchID,
		})
	}
	return PostingInput{
		CompanyID:    companyID,
		PeriodID:     req.PeriodID,
		Date:         date,
		SourceModule: req.SourceModule,
		SourceID:     sourceID,
		Memo:         req.Memo,
		PostedBy:     actorID,
		Lines:        lines,
	}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	principal := internalShared.PrincipalFromContext(r.Context())
	if companyID == 0 || principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.service.VoidJournal(r.Context(), companyID, VoidInput{
		EntryID: pathID(r, "id"),
		ActorID: principal.UserID,
		Reason:  req.Reason,
	}); err != nil {
		h.respondErr(w, "void journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": JournalStatusVoid})
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	principal := internalShared.PrincipalFromContext(r.Context())
	if companyID == 0 || principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	input := ReverseInput{
		EntryID:  pathID(r, "id"),
		ActorID:  principal.UserID,
		Memo:     req.Memo,
		Override: req.Override,
	}
	if req.TargetDate != "" {
		parsed, _ := time.Parse("2006-01-02", req.TargetDate)
		input.TargetDate = &parsed
	}
	reversal, err := h.service.ReverseJournal(r.Context(), companyID, input)
	if err != nil {
		h.respondErr(w, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	entry, err := h.service.Get(r.Context(), companyID, pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	filters := h.filters(r)
	entries, total, err := h.service.List(r.Context(), companyID, filters)
	if err != nil {
		h.respondErr(w, "list journals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"journals":   entries,
		"pagination": internalShared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) filters(r *http.Request) ListFilters {
	page, perPage := internalShared.PageParams(r)
	f := ListFilters{Page: page, PerPage: perPage}
	q := r.URL.Query()
	if raw := q.Get("period_id"); raw != "" {
		f.PeriodID, _ = strconv.ParseInt(raw, 10, 64)
	}
	f.SourceModule = q.Get("source_module")
	if raw := q.Get("status"); raw != "" {
		f.Status = JournalStatus(raw)
	}
	if raw := q.Get("date_from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			f.DateFrom = &parsed
		}
	}
	if raw := q.Get("date_to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			f.DateTo = &parsed
		}
	}
	return f
}

const exportPageSize = 500

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	filters := h.filters(r)
	filters.Page = 1
	filters.PerPage = exportPageSize

	streamer := export.NewCSVStreamer(w, "journals.csv")
	if err := streamer.Write([]string{"number", "date", "period_id", "source_module", "source_id", "memo", "status"}); err != nil {
		return
	}
	for {
		entries, total, err := h.service.List(r.Context(), companyID, filters)
		if err != nil {
			h.logger.Error("export journals", slog.Any("error", err))
			return
		}
		for _, e := range entries {
			record := []string{
				strconv.FormatInt(e.Number, 10),
				e.Date.Format("2006-01-02"),
				strconv.FormatInt(e.PeriodID, 10),
				e.SourceModule,
				e.SourceID.String(),
				e.Memo,
				string(e.Status),
			}
			if err := streamer.Write(record); err != nil {
				return
			}
		}
		if filters.Page*filters.PerPage >= total || len(entries) == 0 {
			break
		}
		filters.Page++
	}
	_ = streamer.Close()
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	filters := h.filters(r)
	filters.Page = 1
	filters.PerPage = exportPageSize

	wb, err := export.NewWorkbook("Journals")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	_ = wb.AppendRow("Number", "Date", "Period", "Source Module", "Source ID", "Memo", "Status")
	_ = wb.FreezeHeader()
	for {
		entries, total, err := h.service.List(r.Context(), companyID, filters)
		if err != nil {
			h.logger.Error("export journals", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		for _, e := range entries {
			_ = wb.AppendRow(e.Number, e.Date.Format("2006-01-02"), e.PeriodID, e.SourceModule, e.SourceID.String(), e.Memo, string(e.Status))
		}
		if filters.Page*filters.PerPage >= total || len(entries) == 0 {
			break
		}
		filters.Page++
	}
	if err := wb.Send(w, "journals.xlsx"); err != nil {
		h.logger.Error("send workbook", slog.Any("error", err))
	}
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrJournalNotFound), errors.Is(err, shared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrCompanyMismatch):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrPeriodLocked),
		errors.Is(err, shared.ErrInvalidPeriod),
		errors.Is(err, shared.ErrSourceAlreadyLinked),
		errors.Is(err, shared.ErrSourceConflict),
		errors.Is(err, shared.ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrDateOutOfRange),
		errors.Is(err, shared.ErrRateUnavailable),
		errors.Is(err, shared.ErrAccountInactive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}
