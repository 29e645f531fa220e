package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"

	"recurset/internal/config"
	"recurset/internal/ics"
	appLog "recurset/internal/log"
	"recurset/internal/model"
	"recurset/internal/source"
)

// setsCacheTTL bounds how long compiled rule sets are reused between
// requests before sources are reloaded.
const setsCacheTTL = 30 * time.Second

// maxBetweenResults caps the occurrences returned by /api/between.
const maxBetweenResults = 5000

// maxBetweenDays caps the /api/between window.
const maxBetweenDays = 366

// Server provides HTTP APIs over the configured rule sets.
type Server struct {
	cfg    *config.Config
	debug  bool
	mux    *http.ServeMux
	loader *source.Loader

	// In-memory cache of compiled sets so that repeated queries do not
	// re-read and re-parse every source.
	setsMu    sync.RWMutex
	setsCache *setsCache

	// now is replaced in tests.
	now func() time.Time
}

// setsCache holds compiled rule sets and the time they were built.
type setsCache struct {
	sets      []source.Compiled
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, debug bool) *Server {
	s := &Server{
		cfg:    cfg,
		debug:  debug,
		mux:    http.NewServeMux(),
		loader: source.NewLoader(cfg.CacheDir),
		now:    time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="recurset", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, debug bool) error {
	s := NewServer(cfg, debug)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "debug", debug)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/rules", s.handleRules)
	s.mux.HandleFunc("/api/between", s.handleBetween)
	s.mux.HandleFunc("/api/next", s.handleNext)
	s.mux.HandleFunc("/api/normalize", s.handleNormalize)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// compiledSets returns the cached sets, reloading all sources once the
// cache is older than setsCacheTTL.
func (s *Server) compiledSets(ctx context.Context) ([]source.Compiled, error) {
	cacheNow := time.Now()

	s.setsMu.RLock()
	sc := s.setsCache
	s.setsMu.RUnlock()
	if sc != nil && cacheNow.Sub(sc.updatedAt) < setsCacheTTL {
		return sc.sets, nil
	}

	opts, err := s.cfg.ParseOptions()
	if err != nil {
		return nil, err
	}

	sets, errs := s.loader.Compile(ctx, source.FromConfig(s.cfg.Rules), opts)
	if len(errs) > 0 {
		appLog.Error("api: one or more rule sources failed", multierr.Combine(errs...), "error_count", len(errs))
	}

	s.setsMu.Lock()
	s.setsCache = &setsCache{sets: sets, updatedAt: time.Now()}
	s.setsMu.Unlock()

	return sets, nil
}

// lookup finds the compiled set for the "id" query parameter. It writes
// the error response itself and reports false when no set is found.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (source.Compiled, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id parameter")
		return source.Compiled{}, false
	}
	sets, err := s.compiledSets(r.Context())
	if err != nil {
		appLog.Error("api: compile failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load rule sets")
		return source.Compiled{}, false
	}
	for _, c := range sets {
		if c.Source.ID == id {
			return c, true
		}
	}
	writeError(w, http.StatusNotFound, "unknown rule set "+strconv.Quote(id))
	return source.Compiled{}, false
}

// ruleDTO summarizes one compiled rule set.
type ruleDTO struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	Text            string     `json:"text"`
	Empty           bool       `json:"empty"`
	Unbounded       bool       `json:"unbounded"`
	FirstStart      *time.Time `json:"first_start,omitempty"`
	LastEnd         *time.Time `json:"last_end,omitempty"`
	MinimumDuration string     `json:"minimum_duration,omitempty"`
	MaximumDuration string     `json:"maximum_duration,omitempty"`
	Exclusions      int        `json:"exclusions"`
	FromCache       bool       `json:"from_cache"`
}

// intervalDTO is a JSON-friendly view of a concrete interval.
type intervalDTO struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration string    `json:"duration"`
}

type betweenResponse struct {
	ID        string        `json:"id"`
	From      time.Time     `json:"from"`
	Until     time.Time     `json:"until"`
	Intervals []intervalDTO `json:"intervals"`
	Truncated bool          `json:"truncated,omitempty"`
}

type nextResponse struct {
	ID       string       `json:"id"`
	After    time.Time    `json:"after"`
	Interval *intervalDTO `json:"interval"`
}

func toRuleDTO(c source.Compiled) ruleDTO {
	set := c.Set
	dto := ruleDTO{
		ID:         c.Source.ID,
		Name:       c.Source.Name,
		Text:       set.String(),
		Empty:      set.Empty(),
		Unbounded:  set.Unbounded(),
		Exclusions: len(set.Exclusions()),
		FromCache:  c.FromCache,
	}
	if t, ok := set.FirstStart().Get(); ok {
		dto.FirstStart = &t
	}
	if t, ok := set.LastEnd().Get(); ok {
		dto.LastEnd = &t
	}
	if d, ok := set.MinimumDuration().Get(); ok {
		dto.MinimumDuration = ics.FormatDuration(d)
	}
	if d, ok := set.MaximumDuration().Get(); ok {
		dto.MaximumDuration = ics.FormatDuration(d)
	}
	return dto
}

func toIntervalDTO(iv model.Interval, loc *time.Location) intervalDTO {
	return intervalDTO{
		Start:    iv.Start.In(loc),
		End:      iv.End.In(loc),
		Duration: ics.FormatDuration(model.Clock(iv.Duration())),
	}
}

// handleRules lists every compiled rule set.
//
// GET /api/rules
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	sets, err := s.compiledSets(r.Context())
	if err != nil {
		appLog.Error("api rules: compile failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load rule sets")
		return
	}
	out := make([]ruleDTO, 0, len(sets))
	for _, c := range sets {
		out = append(out, toRuleDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleBetween returns occurrences starting within a window, at most
// maxBetweenResults of them.
//
// GET /api/between?id=office&from=2020-01-01T00:00:00Z&days=7
//   - from:  window start (default now)
//   - until: window end; overrides days
//   - days:  window length in days (default 7, at most maxBetweenDays)
func (s *Server) handleBetween(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	loc := resolveLocationOrLocal(s.cfg.Timezone)

	from, err := s.timeParam(q.Get("from"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 {
		days = 7
	}
	days = min(days, maxBetweenDays)
	until := from.AddDate(0, 0, days)
	if raw := q.Get("until"); raw != "" {
		until, err = config.ParseTime(raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until: "+err.Error())
			return
		}
	}
	if until.Before(from) {
		writeError(w, http.StatusBadRequest, "until before from")
		return
	}
	if limit := from.AddDate(0, 0, maxBetweenDays); until.After(limit) {
		until = limit
	}

	appLog.Info("api between request", "id", c.Source.ID,
		"from", from.Format(time.RFC3339), "until", until.Format(time.RFC3339))

	ivs, truncated := c.Set.BetweenLimit(from, until, maxBetweenResults)
	resp := betweenResponse{ID: c.Source.ID, From: from, Until: until, Truncated: truncated}
	resp.Intervals = make([]intervalDTO, 0, len(ivs))
	for _, iv := range ivs {
		resp.Intervals = append(resp.Intervals, toIntervalDTO(iv, loc))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleNext returns the first occurrence starting after a point in time.
//
// GET /api/next?id=office&after=2020-01-01T00:00:00Z
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	loc := resolveLocationOrLocal(s.cfg.Timezone)
	after, err := s.timeParam(r.URL.Query().Get("after"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid after: "+err.Error())
		return
	}

	resp := nextResponse{ID: c.Source.ID, After: after}
	if iv, ok := c.Set.FirstAfter(after).Get(); ok {
		dto := toIntervalDTO(iv, loc)
		resp.Interval = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleNormalize parses a posted rule text with the configured defaults
// and returns the summary of the resulting set, canonical text included.
//
// POST /api/normalize
//
//	{"text": "DTSTART:20200101T090000Z\nRRULE:FREQ=DAILY;COUNT=2"}
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	opts, err := s.cfg.ParseOptions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	set, err := ics.Parse(body.Text, opts)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(source.Compiled{Set: set}))
}

// timeParam parses an optional query time, defaulting to now.
func (s *Server) timeParam(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return s.now().In(loc), nil
	}
	return config.ParseTime(raw, loc)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
