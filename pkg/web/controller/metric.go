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

package controller

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/alibaba/opensandbox/healthd/pkg/engine"
	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
	"github.com/alibaba/opensandbox/healthd/pkg/util/safego"
	"github.com/alibaba/opensandbox/healthd/pkg/web/model"
)

const (
	keepAliveInterval = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// MetricSource is the engine as seen by the handlers.
type MetricSource interface {
	Cache() *snapshot.Cache
	Subscribe() (<-chan *snapshot.Snapshot, func())
	Status() engine.Status
}

type HistoryReader interface {
	List(ctx context.Context, since time.Time, limit int) ([]snapshot.Snapshot, error)
}

// Services are the backends shared by all metric requests. History is nil
// when persistence is disabled. AllowOrigins gates websocket upgrades the
// same way the CORS origins gate plain requests; empty or "*" allows any.
type Services struct {
	Metrics      MetricSource
	History      HistoryReader
	AllowOrigins []string
}

func (s *Services) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return OriginAllowed(s.AllowOrigins, r)
		},
	}
}

// OriginAllowed reports whether a browser request from r's Origin may be
// served. Requests without an Origin and same host requests always pass.
func OriginAllowed(origins []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || AnyOrigin(origins) {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.ContainsFunc(origins, func(o string) bool { return strings.EqualFold(o, origin) })
}

// AnyOrigin reports whether the origin list allows every origin.
func AnyOrigin(origins []string) bool {
	return len(origins) == 0 || slices.Contains(origins, "*")
}

// MetricController serves the cached snapshots.
type MetricController struct {
	*basicController
	svc *Services
}

func NewMetricController(ctx *gin.Context, svc *Services) *MetricController {
	return &MetricController{basicController: newBasicController(ctx), svc: svc}
}

// GetMetrics returns the latest snapshot, 503 before the first one exists.
func (c *MetricController) GetMetrics() {
	snap, ok := c.latest()
	if !ok {
		return
	}
	c.RespondSuccess(snap)
}

func (c *MetricController) latest() (*snapshot.Snapshot, bool) {
	snap, err := c.svc.Metrics.Cache().Read()
	if err != nil {
		if snapshot.IsNotReady(err) {
			c.RespondError(http.StatusServiceUnavailable, model.ErrorCodeNotReady, err.Error())
		} else {
			c.RespondError(http.StatusInternalServerError, model.ErrorCodeRuntimeError, err.Error())
		}
		return nil, false
	}
	return snap, true
}

// WatchMetrics streams every new snapshot as a server-sent event.
func (c *MetricController) WatchMetrics() {
	updates, unsubscribe := c.svc.Metrics.Subscribe()
	defer unsubscribe()

	c.setupSSEResponse()
	if snap, err := c.svc.Metrics.Cache().Read(); err == nil {
		c.writeEvent("snapshot", snap)
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	done := c.ctx.Request.Context().Done()
	for {
		select {
		case <-done:
			log.Debug("metrics watcher %s disconnected", c.ctx.ClientIP())
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			c.writeEvent("snapshot", snap)
		case <-keepAlive.C:
			c.writeEvent("ping", "pong")
		}
	}
}

// StreamMetrics pushes every new snapshot over a websocket as a JSON text
// message.
func (c *MetricController) StreamMetrics() {
	conn, err := c.svc.upgrader().Upgrade(c.ctx.Writer, c.ctx.Request, nil)
	if err != nil {
		// the upgrader already answered with an HTTP error
		log.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := c.svc.Metrics.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.ctx.Request.Context())
	defer cancel()

	// drain client frames so close and pong control messages are processed
	safego.Go(func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	send := func(snap *snapshot.Snapshot) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(snap)
	}

	if snap, err := c.svc.Metrics.Cache().Read(); err == nil {
		if err := send(snap); err != nil {
			log.Warn("websocket write failed: %v", err)
			return
		}
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := send(snap); err != nil {
				log.Warn("websocket write failed: %v", err)
				return
			}
		case <-keepAlive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// GetHistory lists persisted snapshots newer than the since query.
func (c *MetricController) GetHistory() {
	if c.svc.History == nil {
		c.RespondError(http.StatusNotFound, model.ErrorCodeNotFound, "snapshot history is disabled")
		return
	}

	var query model.HistoryQuery
	if err := c.ctx.ShouldBindQuery(&query); err != nil {
		c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, fmt.Sprintf("error parsing query. %v", err))
		return
	}
	if err := query.Validate(); err != nil {
		c.RespondError(http.StatusBadRequest, model.ErrorCodeInvalidRequest, fmt.Sprintf("invalid query. %v", err))
		return
	}

	items, err := c.svc.History.List(c.ctx.Request.Context(), query.SinceTime(), query.EffectiveLimit())
	if err != nil {
		c.RespondError(http.StatusInternalServerError, model.ErrorCodeRuntimeError, fmt.Sprintf("error reading history. %v", err))
		return
	}
	c.RespondSuccess(model.HistoryResponse{Count: len(items), Snapshots: items})
}

// GetStatus reports sampler health and engine counters.
func (c *MetricController) GetStatus() {
	c.RespondSuccess(c.svc.Metrics.Status())
}
