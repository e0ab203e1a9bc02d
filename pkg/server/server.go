package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/unum-cloud/ukvdb/pkg/engine"
	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/log"
	"github.com/unum-cloud/ukvdb/pkg/paths"
	"github.com/unum-cloud/ukvdb/pkg/wire"
)

// Server exposes a Database over HTTP, one POST /v1/{command} route per
// spec.md §6 command, with options in a URL-encoded querystring. read,
// write, scan and sample carry Arrow IPC record batches in their bodies; the
// path commands take JSON bodies and the rest take query parameters only.
type Server struct {
	db     *engine.Database
	router *mux.Router
	http   *http.Server
	logger zerolog.Logger
}

// NewServer builds a Server bound to db, registering every command route.
func NewServer(db *engine.Database) *Server {
	s := &Server{db: db, router: mux.NewRouter(), logger: log.WithComponent("server")}
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/read", s.handleRead).Methods(http.MethodPost)
	v1.HandleFunc("/write", s.handleWrite).Methods(http.MethodPost)
	v1.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	v1.HandleFunc("/sample", s.handleSample).Methods(http.MethodPost)
	v1.HandleFunc("/write_path", s.handleWritePath).Methods(http.MethodPost)
	v1.HandleFunc("/read_path", s.handleReadPath).Methods(http.MethodPost)
	v1.HandleFunc("/match_path", s.handleMatchPath).Methods(http.MethodPost)
	v1.HandleFunc("/list_collections", s.handleListCollections).Methods(http.MethodPost)
	v1.HandleFunc("/open_collection", s.handleOpenCollection).Methods(http.MethodPost)
	v1.HandleFunc("/remove_collection", s.handleRemoveCollection).Methods(http.MethodPost)
	v1.HandleFunc("/begin_transaction", s.handleBeginTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/commit_transaction", s.handleCommitTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/list_snapshots", s.handleListSnapshots).Methods(http.MethodPost)
	v1.HandleFunc("/create_snapshot", s.handleCreateSnapshot).Methods(http.MethodPost)
	v1.HandleFunc("/drop_snapshot", s.handleDropSnapshot).Methods(http.MethodPost)
}

// Start begins serving HTTP on addr. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.recoverMiddleware(s.router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("command server listening")
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ukv: network: %w", err)
	}
	return s.http.Serve(lis)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// recoverMiddleware converts a panic inside a handler into ErrUnknown,
// per the "no panic crosses a public API boundary" design note: engine
// invariant violations surface as a 500 with an engine.ErrUnknown body
// instead of taking the process down.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Msg("recovered in command handler")
				writeError(w, engine.Wrap(engine.ErrUnknown, fmt.Sprintf("%v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// --- querystring option parsing, per spec.md §6 ---

func parseOptions(r *http.Request) wire.Options {
	var opts wire.Options
	q := r.URL.Query()
	if q.Get("dont_watch") == "true" {
		opts |= wire.OptDontWatch
	}
	if q.Get("dont_discard_memory") == "true" {
		opts |= wire.OptDontDiscardMemory
	}
	if q.Get("read_shared_memory") == "true" {
		opts |= wire.OptReadSharedMemory
	}
	if q.Get("write_flush") == "true" {
		opts |= wire.OptWriteFlush
	}
	if q.Get("scan_bulk") == "true" {
		opts |= wire.OptScanBulk
	}
	return opts
}

func parseCollection(r *http.Request) kv.Handle {
	q := r.URL.Query().Get("collection")
	if q == "" {
		return kv.MainCollection
	}
	n, err := strconv.ParseUint(q, 10, 64)
	if err != nil {
		return kv.MainCollection
	}
	return kv.Handle(n)
}

func parseTxn(r *http.Request) engine.TxnHandle {
	n, _ := strconv.ParseUint(r.URL.Query().Get("transaction"), 10, 64)
	return engine.TxnHandle(n)
}

func parseSnapshot(r *http.Request) engine.SnapshotHandle {
	n, _ := strconv.ParseUint(r.URL.Query().Get("snapshot"), 10, 64)
	return engine.SnapshotHandle(n)
}

func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

// --- command handlers ---

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	collection := parseCollection(r)
	view, release, err := decodeKeyStridedBatch(body, collection)
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	opts := parseOptions(r)
	txn := parseTxn(r)
	snap := parseSnapshot(r)

	var entries []kv.Entry
	switch {
	case txn != 0:
		entries, err = s.db.TxnRead(txn, collection, view.Keys[:view.Count], opts)
	case snap != 0:
		entries, err = s.db.ReadSnapshot(snap, collection, view.Keys[:view.Count])
	default:
		// The zero-copy strided view goes straight to the engine here,
		// exercising the same BatchReader path a caller's own strided
		// buffer would take via wire.StridedView.
		entries, err = s.db.ReadBatch(view)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	body, err = encodeEntries(entries)
	writeRecordBatch(w, body, err)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	keys, values, err := decodeKeyValueBatch(body)
	if err != nil {
		writeError(w, err)
		return
	}
	writes := make([]kv.Write, len(keys))
	for i := range keys {
		writes[i] = kv.Write{Key: keys[i], Value: values[i]}
	}

	collection := parseCollection(r)
	txn := parseTxn(r)

	if txn != 0 {
		if err := s.db.TxnWrite(txn, collection, writes); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
		return
	}

	gen, err := s.db.Write(collection, writes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"generation": gen})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	start, _ := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
	collection := parseCollection(r)

	keys, err := s.db.Scan(collection, start, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := encodeKeys(keys)
	writeRecordBatch(w, body, err)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	collection := parseCollection(r)

	keys, err := s.db.Sample(collection, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := encodeKeys(keys)
	writeRecordBatch(w, body, err)
}

func (s *Server) handleWritePath(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Writes []struct {
			Path  string `json:"path"`
			Value []byte `json:"value"`
		} `json:"writes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}
	store, err := s.pathsStore(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writes := make([]paths.Write, len(body.Writes))
	for i, wr := range body.Writes {
		writes[i] = paths.Write{Path: wr.Path, Value: wr.Value}
	}
	if err := store.Write(writes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleReadPath(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}
	store, err := s.pathsStore(r)
	if err != nil {
		writeError(w, err)
		return
	}
	values, err := store.Read(body.Paths)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"values": values})
}

func (s *Server) handleMatchPath(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Patterns []string `json:"patterns"`
		Previous string   `json:"previous"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}
	limit := parseLimit(r)
	collection := parseCollection(r)

	store, err := s.pathsStore(r)
	if err != nil {
		writeError(w, err)
		return
	}
	matches, err := store.Match(s.db.Engine(), collection, body.Patterns, body.Previous, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"paths": matches})
}

func (s *Server) pathsStore(r *http.Request) (*paths.Store, error) {
	return s.db.Paths(parseCollection(r), parseTxn(r), parseSnapshot(r))
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"collections": s.db.ListCollections()})
}

func (s *Server) handleOpenCollection(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	h, err := s.db.OpenCollection(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"collection": h})
}

func (s *Server) handleRemoveCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.db.RemoveCollection(parseCollection(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleBeginTransaction(w http.ResponseWriter, r *http.Request) {
	h := s.db.BeginTransaction()
	writeJSON(w, map[string]any{"transaction": h})
}

func (s *Server) handleCommitTransaction(w http.ResponseWriter, r *http.Request) {
	txnHandle := parseTxn(r)
	gen, err := s.db.CommitTransaction(txnHandle)
	if err != nil {
		writeError(w, err)
		return
	}
	log.WithState("server", "", uint64(txnHandle), uint64(gen)).Debug().Msg("transaction committed over http")
	writeJSON(w, map[string]any{"generation": gen})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"snapshots": s.db.ListSnapshots()})
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	h := s.db.CreateSnapshot()
	writeJSON(w, map[string]any{"snapshot": h})
}

func (s *Server) handleDropSnapshot(w http.ResponseWriter, r *http.Request) {
	s.db.DropSnapshot(parseSnapshot(r))
	writeJSON(w, map[string]any{"ok": true})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeRecordBatch(w http.ResponseWriter, body []byte, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var kindErr *engine.KindError
	if errors.As(err, &kindErr) {
		switch kindErr.Kind {
		case engine.KindArgumentWrong, engine.KindArgsCombo, engine.KindOutOfRange:
			status = http.StatusBadRequest
		case engine.KindUninitialized:
			status = http.StatusNotFound
		case engine.KindMissingFeature:
			status = http.StatusNotImplemented
		case engine.KindTransactionConflict:
			status = http.StatusConflict
		case engine.KindNetwork:
			status = http.StatusBadGateway
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
}
