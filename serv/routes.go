package serv

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dosco/restjin/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-http-utils/headers"
)

const (
	healthRoute  = "/health"
	routeAPI     = "/api/v1/{conn}"
	routeSchema  = "/_schema"
	routeGraph   = "/_graph"
	routeCompile = "/_graph/compile"
	routeWrite   = "/_graph/{op}"
	routeTable   = "/{table}"
	routeRecord  = "/{table}/{id}"
	routeRelated = "/{table}/{id}/{related}"
)

// query parameters that are not column filters
var reservedParams = []string{"limit", "offset", "orderBy", "orderDir", "fk"}

// routesHandler is the main handler for all routes
func routesHandler(s *Service, mux chi.Router) http.Handler {
	// Healthcheck API
	mux.Get(healthRoute, s.healthCheckHandler)

	mux.Route(routeAPI, func(r chi.Router) {
		r.Get(routeSchema, s.schemaHandler)

		r.Post(routeGraph, s.queryGraphHandler)
		r.Post(routeCompile, s.compileGraphHandler)
		r.Post(routeWrite, s.writeGraphHandler)

		r.Get(routeTable, s.listHandler)
		r.Post(routeTable, s.createHandler)
		r.Patch(routeTable, s.updateWhereHandler)
		r.Delete(routeTable, s.deleteWhereHandler)

		r.Get(routeRecord, s.getHandler)
		r.Put(routeRecord, s.updateHandler)
		r.Delete(routeRecord, s.deleteHandler)

		r.Get(routeRelated, s.relatedHandler)
	})

	return withMiddleware(s, mux)
}

func (s *Service) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	for name, db := range s.dbs {
		if err := db.PingContext(r.Context()); err != nil {
			s.log.Warnf("health check: database %s: %s", name, err)
			renderErr(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": s.eng.Connections(),
	})
}

type schemaResp struct {
	Connection string          `json:"connection"`
	Local      bool            `json:"local"`
	Tables     []*core.DBTable `json:"tables"`
}

func (s *Service) schemaHandler(w http.ResponseWriter, r *http.Request) {
	conn := chi.URLParam(r, "conn")

	tables, err := s.eng.Tables(conn)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, schemaResp{
		Connection: conn,
		Local:      s.eng.IsLocal(conn),
		Tables:     tables,
	})
}

// table resolves the table handle named in the route
func (s *Service) table(w http.ResponseWriter, r *http.Request) (*core.Table, bool) {
	t, err := s.eng.Table(chi.URLParam(r, "conn"), chi.URLParam(r, "table"))
	if err != nil {
		s.renderError(w, r, err)
		return nil, false
	}
	return t, true
}

func (s *Service) listHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	args, err := listArgs(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	rows, err := t.List(r.Context(), args)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderRows(w, rows)
}

func (s *Service) createHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var data map[string]interface{}
	if err := readJSON(r, &data); err != nil {
		s.renderError(w, r, err)
		return
	}
	row, err := t.Create(r.Context(), data)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, row)
}

func (s *Service) updateWhereHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var data map[string]interface{}
	if err := readJSON(r, &data); err != nil {
		s.renderError(w, r, err)
		return
	}
	n, err := t.UpdateWhere(r.Context(), core.FiltersFromQuery(r.URL.Query(), reservedParams...), data)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]int{"updatedCount": n})
}

func (s *Service) deleteWhereHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	n, err := t.DeleteWhere(r.Context(), core.FiltersFromQuery(r.URL.Query(), reservedParams...))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]int{"deletedCount": n})
}

func (s *Service) getHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	row, err := t.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderRead(w, row)
}

func (s *Service) updateHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var data map[string]interface{}
	if err := readJSON(r, &data); err != nil {
		s.renderError(w, r, err)
		return
	}
	row, err := t.Update(r.Context(), chi.URLParam(r, "id"), data)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, row)
}

func (s *Service) deleteHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	row, err := t.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, row)
}

func (s *Service) relatedHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	args, err := listArgs(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	rows, err := t.Related(r.Context(),
		chi.URLParam(r, "id"),
		chi.URLParam(r, "related"),
		r.URL.Query().Get("fk"),
		args)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderRows(w, rows)
}

func (s *Service) queryGraphHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.readGraph(w, r)
	if !ok {
		return
	}
	res, err := s.eng.QueryGraph(r.Context(), chi.URLParam(r, "conn"), g)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderRead(w, res)
}

func (s *Service) compileGraphHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.readGraph(w, r)
	if !ok {
		return
	}
	st, err := s.eng.CompileGraph(chi.URLParam(r, "conn"), g)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, st)
}

func (s *Service) readGraph(w http.ResponseWriter, r *http.Request) (*core.Graph, bool) {
	var body json.RawMessage
	if err := readJSON(r, &body); err != nil {
		s.renderError(w, r, err)
		return nil, false
	}
	g, err := core.ParseGraph(body)
	if err != nil {
		s.renderError(w, r, err)
		return nil, false
	}
	return g, true
}

type writeReq struct {
	Graph             json.RawMessage        `json:"graph"`
	Data              map[string]interface{} `json:"data"`
	PreviewOnly       bool                   `json:"previewOnly"`
	AdditionalFilters map[string]interface{} `json:"additionalFilters"`
}

func (s *Service) writeGraphHandler(w http.ResponseWriter, r *http.Request) {
	op, err := core.ParseWriteOp(chi.URLParam(r, "op"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	var req writeReq
	if err := readJSON(r, &req); err != nil {
		s.renderError(w, r, err)
		return
	}
	g, err := core.ParseGraph(req.Graph)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	af, err := core.FiltersFromMap(req.AdditionalFilters)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	res, err := s.eng.WriteGraph(r.Context(), chi.URLParam(r, "conn"), op, g, req.Data,
		core.WriteOptions{PreviewOnly: req.PreviewOnly, AdditionalFilters: af})
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, res)
}

// listArgs reads pagination and ordering from the query string. Every
// other parameter is a column filter.
func listArgs(r *http.Request) (core.ListArgs, error) {
	q := r.URL.Query()
	args := core.ListArgs{
		Filters:  core.FiltersFromQuery(q, reservedParams...),
		OrderBy:  q.Get("orderBy"),
		OrderDir: q.Get("orderDir"),
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return args, core.NewError(core.KindInvalidGraph, "invalid limit: %s", v)
		}
		args.Limit = &n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return args, core.NewError(core.KindInvalidGraph, "invalid offset: %s", v)
		}
		args.Offset = &n
	}
	return args, nil
}

func (s *Service) renderRows(w http.ResponseWriter, rows []core.Row) {
	if rows == nil {
		rows = []core.Row{}
	}
	s.renderRead(w, rows)
}

// renderRead writes the response of a read, with the configured
// Cache-Control header
func (s *Service) renderRead(w http.ResponseWriter, v interface{}) {
	if s.conf.CacheControl != "" {
		w.Header().Set(headers.CacheControl, s.conf.CacheControl)
	}
	renderJSON(w, http.StatusOK, v)
}
