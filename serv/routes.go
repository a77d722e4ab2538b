package serv

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-http-utils/headers"
	"github.com/klauspost/compress/gzhttp"
	"github.com/navql/navql/serv/internal/etags"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	routeCompile = "/api/v1/compile"
	routeQuery   = "/api/v1/query"
	routeModel   = "/api/v1/model"
	healthRoute  = "/health"
)

// Handler returns the HTTP handler serving the navql routes.
func (s *Service) Handler() (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(setServerHeader)

	if len(s.conf.AllowedOrigins) != 0 {
		allowedHeaders := []string{headers.ContentType, headers.Authorization}
		allowedHeaders = append(allowedHeaders, s.conf.AllowedHeaders...)

		c := cors.New(cors.Options{
			AllowedOrigins:   s.conf.AllowedOrigins,
			AllowedHeaders:   allowedHeaders,
			AllowCredentials: true,
			Debug:            s.conf.DebugCORS,
		})
		r.Use(c.Handler)
	}

	if s.conf.rateLimiterEnable() {
		r.Use(s.rateLimiter)
	}

	if s.conf.HTTPGZip {
		gz, err := gzhttp.NewWrapper(gzhttp.CompressionLevel(6))
		if err != nil {
			return nil, err
		}
		r.Use(func(h http.Handler) http.Handler { return gz(h) })
	}

	r.Get(healthRoute, s.health)

	r.Method(http.MethodPost, routeCompile, s.traced(routeCompile, http.HandlerFunc(s.apiV1Compile)))
	r.Method(http.MethodPost, routeQuery, s.traced(routeQuery, http.HandlerFunc(s.apiV1Query)))

	if !s.conf.Production {
		r.Method(http.MethodGet, routeModel, etags.Handler(http.HandlerFunc(s.apiV1Model), false))
	}

	return r, nil
}

func (s *Service) traced(route string, h http.Handler) http.Handler {
	if !s.conf.EnableTracing {
		return h
	}
	return otelhttp.NewHandler(h, route)
}

func setServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headers.Server, serverName)
		h.ServeHTTP(w, r)
	})
}
