package grpc

import (
	"golang.org/x/time/rate"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
)

type GeoAlertServer struct {
	Engine           *engine.Engine
	RateLimiterStore *engine.RateLimiterStore
}

func (s *GeoAlertServer) GetLimiter(userID string) *rate.Limiter {
	if s.RateLimiterStore == nil {
		return nil
	} else {
		return s.RateLimiterStore.GetLimiter(userID)
	}
}

func (s *GeoAlertServer) CheckUserLimiter(userID string) bool {
	limiter := s.GetLimiter(userID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}
