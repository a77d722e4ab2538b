package serv

import (
	"net"
	"net/http"
	"strings"
	"time"

	cache "github.com/go-pkgz/expirable-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ipCache cache.Cache

func init() {
	ipCache, _ = cache.NewCache(cache.MaxKeys(10000), cache.TTL(time.Minute*5))
}

func getIPLimiter(ip string, limit float64, bucket int) *rate.Limiter {
	v, exists := ipCache.Get(ip)
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(limit), bucket)
		ipCache.Set(ip, limiter, 0)
		return limiter
	}

	return v.(*rate.Limiter)
}

// clientIP returns the address the request came from. Behind a proxy the
// last hop added to the forwarding header is used.
func clientIP(r *http.Request, ipHeader string) (string, error) {
	var iph string

	if ipHeader != "" {
		iph = r.Header.Get(ipHeader)
	} else {
		iph = r.Header.Get("X-Forwarded-For")
	}

	if iph != "" {
		v := strings.Split(iph, ",")
		return strings.TrimSpace(v[len(v)-1]), nil
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	return ip, err
}

func (s *Service) rateLimiter(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ip, err := clientIP(r, s.conf.RateLimiter.IPHeader)
		if err != nil {
			s.zlog.Error("rate limiter", zap.Error(err))
			http.Error(w, "400 Bad Request", http.StatusBadRequest)
			return
		}

		if !getIPLimiter(ip,
			s.conf.RateLimiter.Rate,
			s.conf.RateLimiter.Bucket).Allow() {
			http.Error(w, "429 Too Many Requests", http.StatusTooManyRequests)
			return
		}

		h.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}
