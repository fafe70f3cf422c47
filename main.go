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

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/alibaba/opensandbox/healthd/pkg/engine"
	"github.com/alibaba/opensandbox/healthd/pkg/flag"
	"github.com/alibaba/opensandbox/healthd/pkg/history"
	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/probe"
	"github.com/alibaba/opensandbox/healthd/pkg/sampler"
	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
	"github.com/alibaba/opensandbox/healthd/pkg/util/glob"
	"github.com/alibaba/opensandbox/healthd/pkg/util/safego"
	"github.com/alibaba/opensandbox/healthd/pkg/web"
	"github.com/alibaba/opensandbox/healthd/pkg/web/controller"
)

const retryDelay = 200 * time.Millisecond

func main() {
	flag.InitFlags()

	log.SetLevel(flag.ServerLogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	safego.InitPanicLogger(ctx)

	if err := run(ctx); err != nil {
		log.Error("healthd exited: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	hostProbe := probe.NewHostProbe(probe.HostConfig{
		ExcludeInterfaces: glob.MustMatcher(flag.ExcludeInterfaces...),
		ExcludeMounts:     glob.MustMatcher(flag.ExcludeMounts...),
		ExcludeFSTypes:    glob.MustMatcher(flag.ExcludeFSTypes...),
	})
	s := sampler.New(hostProbe,
		sampler.WithTimeout(flag.ProbeTimeout),
		sampler.WithRetries(flag.ProbeRetries, retryDelay),
	)

	opts := []engine.Option{
		engine.WithInterval(flag.CollectInterval),
		engine.WithBuilder(engine.NewBuilder(flag.TopProcesses)),
		engine.WithFamilyReporter(hostProbe),
	}
	services := &controller.Services{}
	if flag.HistoryDriver != "" {
		store, err := history.Open(flag.HistoryDriver, flag.HistoryDSN, flag.HistoryRetention)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, engine.WithRecorder(store))
		services.History = store
	}

	eng, err := engine.New(s, snapshot.NewCache(), opts...)
	if err != nil {
		return err
	}
	services.Metrics = eng

	router := web.NewRouter(web.Options{
		AccessToken:  flag.ServerAccessToken,
		AllowOrigins: flag.CORSOrigins,
		Services:     services,
	})
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if flag.HTTPSMode {
		tlsCfg, err := web.LoadTLSConfig(flag.TLSKeyFile, flag.TLSCertFile, flag.TLSCABundle)
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsCfg
	}

	addr := fmt.Sprintf(":%d", flag.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("healthd listening on %s (https: %v)", addr, flag.HTTPSMode)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		return web.Serve(gctx, srv, ln, flag.ApiGracefulShutdownTimeout)
	})
	return g.Wait()
}
