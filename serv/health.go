package serv

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var healthyResponse = []byte("All's Well")

func (s *Service) health(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		timeout := s.conf.DB.PingTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}

		ct, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := s.db.PingContext(ct); err != nil {
			s.zlog.Error("health check", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	_, _ = w.Write(healthyResponse)
}
