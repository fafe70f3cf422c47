// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/web/controller"
	"github.com/alibaba/opensandbox/healthd/pkg/web/model"
)

// Options configure the HTTP shell.
type Options struct {
	AccessToken string
	// AllowOrigins lists the CORS and websocket origins, "*" allows any.
	AllowOrigins []string
	Services     *controller.Services
}

// NewRouter builds a Gin engine with all healthd routes.
func NewRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logMiddleware(), securityHeadersMiddleware(), corsMiddleware(opts.AllowOrigins), accessTokenMiddleware(opts.AccessToken))

	svc := *opts.Services
	svc.AllowOrigins = opts.AllowOrigins
	opts.Services = &svc

	r.GET("/ping", controller.PingHandler)
	r.GET("/health", withMetric(opts.Services, func(c *controller.MetricController) { c.GetMetrics() }))
	r.GET("/status", withMetric(opts.Services, func(c *controller.MetricController) { c.GetStatus() }))

	metric := r.Group("/metrics")
	{
		metric.GET("", withMetric(opts.Services, func(c *controller.MetricController) { c.GetMetrics() }))
		metric.GET("/watch", withMetric(opts.Services, func(c *controller.MetricController) { c.WatchMetrics() }))
		metric.GET("/ws", withMetric(opts.Services, func(c *controller.MetricController) { c.StreamMetrics() }))
		metric.GET("/history", withMetric(opts.Services, func(c *controller.MetricController) { c.GetHistory() }))
	}

	return r
}

func withMetric(svc *controller.Services, fn func(*controller.MetricController)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		fn(controller.NewMetricController(ctx, svc))
	}
}

func accessTokenMiddleware(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if token == "" || ctx.Request.URL.Path == "/ping" || ctx.Request.Method == http.MethodOptions {
			ctx.Next()
			return
		}

		requestedToken := ctx.GetHeader(model.ApiAccessTokenHeader)
		if requestedToken == "" || requestedToken != token {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
				Code:    model.ErrorCodeUnauthorized,
				Message: "invalid or missing header " + model.ApiAccessTokenHeader,
			})
			return
		}

		ctx.Next()
	}
}

func logMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		log.Info("Requested: %v - %v", ctx.Request.Method, ctx.Request.URL.String())
		ctx.Next()
	}
}
