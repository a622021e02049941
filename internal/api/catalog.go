package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/models"
	"github.com/mkoziy/numbers/syncer/internal/repositories"
)

func (s *server) listCountries(w http.ResponseWriter, r *http.Request) {
	var f repositories.CountryFilter

	if v := r.URL.Query().Get("number_type"); v != "" {
		nt, err := models.ParseNumberType(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%v; must be one of: %s", err, joinNumberTypes()))
			return
		}
		f.NumberType = nt
	}

	skip, ok := intParam(r, "skip", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	limit, ok := intParam(r, "limit", 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	f.Offset, f.Limit = skip, limit

	countries, err := repositories.ListCountries(r.Context(), s.db, f)
	if err != nil {
		s.logger.Error("list countries", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list countries")
		return
	}
	writeJSON(w, http.StatusOK, countries)
}

func (s *server) getCountry(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))

	c, err := repositories.GetCountry(r.Context(), s.db, code)
	if errors.Is(err, repositories.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("country %s not found", code))
		return
	}
	if err != nil {
		s.logger.Error("get country", zap.String("country_code", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load country")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) getRegulations(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))

	onlyAvailable, ok := boolParam(r, "only_available_types")
	if !ok {
		writeError(w, http.StatusBadRequest, "only_available_types must be true or false")
		return
	}

	regs, err := repositories.ListRegulations(r.Context(), s.db, repositories.RegulationFilter{
		Country:            code,
		NumberType:         r.URL.Query().Get("number_type"),
		OnlyAvailableTypes: onlyAvailable,
	})
	if err != nil {
		s.logger.Error("list regulations", zap.String("country_code", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list regulations")
		return
	}
	if len(regs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no regulations found for country %s; sync regulations first", code))
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

func joinNumberTypes() string {
	names := make([]string, len(models.NumberTypes))
	for i, nt := range models.NumberTypes {
		names[i] = string(nt)
	}
	return strings.Join(names, ", ")
}
