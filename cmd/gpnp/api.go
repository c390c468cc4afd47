package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/events"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/processor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type api struct {
	http.Handler
	app     *app
	dataDir string
	events  *events.Broker
	log     *zap.SugaredLogger

	mx      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

func newAPI(a *app, b *events.Broker) *api {
	r := mux.NewRouter()
	srv := &api{
		Handler: r,
		app:     a,
		dataDir: a.cfg.DataDir,
		events:  b,
		log:     logger.Named("api"),
	}
	r.Use(srv.logRequests)

	r.HandleFunc("/api/job", srv.getJob).Methods("GET")
	r.HandleFunc("/api/job", srv.loadJob).Methods("PUT")
	r.HandleFunc("/api/job/{action}", srv.jobAction).Methods("POST")
	r.HandleFunc("/api/machine", srv.getMachine).Methods("GET")
	r.HandleFunc("/api/machine/home", srv.home).Methods("POST")

	fs := http.FileServer(http.Dir(srv.dataDir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			srv.putFile(w, req)
		case "DELETE":
			srv.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r.PathPrefix("/events/").Handler(b)
	r.Handle("/metrics", promhttp.Handler())

	return srv
}

func (srv *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		srv.log.Debugw("request", "method", req.Method, "path", req.URL.Path, logger.FieldAddress, req.RemoteAddr)
		next.ServeHTTP(w, req)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func (srv *api) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		srv.log.Warnw("encode response", logger.FieldError, err)
	}
}

func (srv *api) writeError(w http.ResponseWriter, code int, err error) {
	srv.writeJSON(w, code, errorResponse{Error: err.Error(), Hint: errors.FlattenHints(err)})
}

// safePath resolves name inside base, refusing anything that would escape
// it.
func safePath(base, name string) (string, error) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return "", errors.Newf("invalid path %q", name)
	}
	if base == "" {
		base = "."
	}
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", errors.Newf("invalid path %q", name)
	}
	return filepath.Join(base, filepath.FromSlash(clean)), nil
}

type jobStatus struct {
	processor.Status
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

func (srv *api) status() jobStatus {
	srv.mx.Lock()
	s := jobStatus{Running: srv.done != nil}
	if srv.lastErr != nil {
		s.Error = srv.lastErr.Error()
	}
	srv.mx.Unlock()
	s.Status = srv.app.p.Status()
	return s
}

func (srv *api) getJob(w http.ResponseWriter, req *http.Request) {
	srv.writeJSON(w, http.StatusOK, srv.status())
}

type loadJobRequest struct {
	File string `json:"file"`
}

func (srv *api) loadJob(w http.ResponseWriter, req *http.Request) {
	var body loadJobRequest
	err := json.NewDecoder(req.Body).Decode(&body)
	if err != nil {
		srv.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	name, err := safePath(srv.dataDir, body.File)
	if err != nil {
		srv.writeError(w, http.StatusBadRequest, err)
		return
	}
	if srv.isRunning() {
		srv.writeError(w, http.StatusConflict, errors.New("a job is running"))
		return
	}

	j, err := job.Load(name)
	if err != nil {
		srv.writeError(w, http.StatusBadRequest, err)
		return
	}
	err = srv.app.p.Initialize(req.Context(), j)
	if err != nil {
		srv.writeError(w, http.StatusConflict, err)
		return
	}
	srv.setErr(nil)
	srv.writeJSON(w, http.StatusOK, srv.status())
}

func (srv *api) jobAction(w http.ResponseWriter, req *http.Request) {
	action := mux.Vars(req)["action"]
	ctx := req.Context()
	p := srv.app.p

	var err error
	switch action {
	case "start":
		if !srv.start() {
			srv.writeError(w, http.StatusConflict, errors.New("a job is already running"))
			return
		}
		srv.writeJSON(w, http.StatusAccepted, srv.status())
		return
	case "abort":
		srv.stop()
		err = p.Abort(ctx)
	case "next", "skip", "ignore", "reset":
		if srv.isRunning() {
			srv.writeError(w, http.StatusConflict, errors.New("a job is running"))
			return
		}
		switch action {
		case "next":
			_, err = p.Next(ctx)
		case "skip":
			err = p.Skip(ctx)
		case "ignore":
			err = p.IgnoreContinue(ctx)
		case "reset":
			err = p.Reset(ctx)
		}
	default:
		http.NotFound(w, req)
		return
	}

	srv.setErr(err)
	if err != nil {
		srv.writeError(w, http.StatusConflict, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, srv.status())
}

func (srv *api) isRunning() bool {
	srv.mx.Lock()
	defer srv.mx.Unlock()
	return srv.done != nil
}

func (srv *api) setErr(err error) {
	srv.mx.Lock()
	srv.lastErr = err
	srv.mx.Unlock()
}

// start runs the job in the background until it finishes or fails.
func (srv *api) start() bool {
	srv.mx.Lock()
	defer srv.mx.Unlock()
	if srv.done != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	srv.cancel = cancel
	srv.done = done
	srv.lastErr = nil

	go func() {
		defer close(done)
		err := srv.runLoop(ctx)
		srv.mx.Lock()
		srv.lastErr = err
		srv.done = nil
		srv.cancel = nil
		srv.mx.Unlock()
		cancel()
	}()
	return true
}

func (srv *api) runLoop(ctx context.Context) error {
	p := srv.app.p
	for {
		ok, err := p.Next(ctx)
		if err != nil {
			srv.log.Warnw("job stopped", logger.FieldRunID, p.RunID(), logger.FieldState, p.State(), logger.FieldError, err)
			return err
		}
		if !ok {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// stop cancels a background run and waits for it to return.
func (srv *api) stop() {
	srv.mx.Lock()
	cancel, done := srv.cancel, srv.done
	srv.mx.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done
}

type machineStatus struct {
	Heads   []events.Head  `json:"heads"`
	Feeders []feederStatus `json:"feeders"`
}

type feederStatus struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Part    string `json:"part"`
	Enabled bool   `json:"enabled"`
}

func (srv *api) getMachine(w http.ResponseWriter, req *http.Request) {
	m := srv.app.Machine()
	var res machineStatus
	for _, h := range m.Heads {
		res.Heads = append(res.Heads, events.NewHead(h))
	}
	for _, f := range m.Feeders {
		res.Feeders = append(res.Feeders, feederStatus{ID: f.ID(), Name: f.Name(), Part: f.PartID(), Enabled: f.Enabled()})
	}
	srv.writeJSON(w, http.StatusOK, res)
}

func (srv *api) home(w http.ResponseWriter, req *http.Request) {
	if srv.isRunning() {
		srv.writeError(w, http.StatusConflict, errors.New("a job is running"))
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Minute)
	defer cancel()
	err := srv.app.Machine().Home(ctx)
	if err != nil {
		srv.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *api) putFile(w http.ResponseWriter, req *http.Request) {
	name, err := safePath(srv.dataDir, req.URL.Path)
	if err != nil {
		srv.writeError(w, http.StatusBadRequest, err)
		return
	}
	err = os.MkdirAll(filepath.Dir(name), 0755)
	if err != nil {
		srv.writeError(w, http.StatusInternalServerError, err)
		return
	}
	f, err := os.Create(name)
	if err != nil {
		srv.log.Errorw("create file", logger.FieldFile, name, logger.FieldError, err)
		srv.writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		srv.log.Errorw("write file", logger.FieldFile, name, logger.FieldError, err)
		srv.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	name, err := safePath(srv.dataDir, req.URL.Path)
	if err != nil {
		srv.writeError(w, http.StatusBadRequest, err)
		return
	}
	err = os.Remove(name)
	if os.IsNotExist(err) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		srv.log.Errorw("delete file", logger.FieldFile, name, logger.FieldError, err)
		srv.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
