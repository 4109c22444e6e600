package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"qrstudio/internal/domain"
	"qrstudio/internal/objstore"
)

// filesPrefix is the URL root of stored objects.
const filesPrefix = "/files"

// assetRouter serves stored objects (uploads, renders, exports, code images)
// so the webview and the conversion service can fetch them by URL.
func assetRouter(store objstore.Store) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(filesPrefix+"/{path:.+}", serveObject(store)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return r
}

func serveObject(store objstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := mux.Vars(r)["path"]
		rc, contentType, err := store.Get(r.Context(), p)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.NotFound(w, r)
			case errors.Is(err, domain.ErrAccessDenied):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				log.Printf("[Upload] serve %s: %v", p, err)
				http.Error(w, "storage error", http.StatusBadGateway)
			}
			return
		}
		defer rc.Close()

		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, rc); err != nil {
			log.Printf("[Upload] stream %s: %v", p, err)
		}
	}
}

// assetServer runs the asset routes on the download listener.
type assetServer struct {
	srv *http.Server
}

func startAssetServer(listen string, store objstore.Store) (*assetServer, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           assetRouter(store),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Upload] asset server: %v", err)
		}
	}()
	log.Printf("[Upload] serving files on %s", ln.Addr())
	return &assetServer{srv: srv}, nil
}

func (s *assetServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.srv.Shutdown(ctx)
}
