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
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"

	"github.com/alibaba/opensandbox/healthd/pkg/web/controller"
	"github.com/alibaba/opensandbox/healthd/pkg/web/model"
)

func securityHeadersMiddleware() gin.HandlerFunc {
	sec := secure.New(secure.Options{
		ContentSecurityPolicy:         "default-src 'self';frame-ancestors 'self';object-src 'none'",
		CrossOriginOpenerPolicy:       "same-origin",
		CrossOriginResourcePolicy:     "same-origin",
		ReferrerPolicy:                "no-referrer",
		STSSeconds:                    15552000,
		STSIncludeSubdomains:          true,
		ForceSTSHeader:                true,
		ContentTypeNosniff:            true,
		XDNSPrefetchControl:           "off",
		CustomFrameOptionsValue:       "SAMEORIGIN",
		XPermittedCrossDomainPolicies: "none",
		CustomBrowserXssValue:         "0",
	})
	return func(ctx *gin.Context) {
		if err := sec.Process(ctx.Writer, ctx.Request); err != nil {
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// corsMiddleware answers preflights and tags responses for the configured
// origins. Cross origin requests from other origins are refused with 403.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", model.ApiAccessTokenHeader},
		MaxAge:       10 * time.Minute,
	}
	if controller.AnyOrigin(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
