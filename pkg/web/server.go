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
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/util/safego"
)

// LoadTLSConfig builds the server TLS configuration. The optional CA bundle
// is appended to the served certificate chain; a missing bundle file is
// ignored.
func LoadTLSConfig(keyFile, certFile, caFile string) (*tls.Config, error) {
	crt, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls cert/key: %w", err)
	}

	if caFile != "" {
		bundle, err := os.ReadFile(caFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Warn("tls ca bundle %s not found, serving certificate chain as is", caFile)
		case err != nil:
			return nil, fmt.Errorf("read ca bundle: %w", err)
		default:
			extra, err := parseCertificates(bundle)
			if err != nil {
				return nil, fmt.Errorf("parse ca bundle: %w", err)
			}
			crt.Certificate = append(crt.Certificate, extra...)
		}
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{crt},
	}, nil
}

func parseCertificates(data []byte) ([][]byte, error) {
	var out [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, err
		}
		out = append(out, block.Bytes)
	}
	if len(out) == 0 {
		return nil, errors.New("no certificate found")
	}
	return out, nil
}

// Serve runs srv on ln until ctx is done, then shuts it down gracefully
// within shutdownTimeout. Request contexts derive from ctx, so open streams
// end once ctx is done. TLS is served when srv.TLSConfig is set.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	if srv.BaseContext == nil {
		srv.BaseContext = func(net.Listener) context.Context { return ctx }
	}

	errCh := make(chan error, 1)
	safego.Go(func() {
		var err error
		if srv.TLSConfig != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		errCh <- err
	})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server, timeout %s", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// streams outlived the grace period
		_ = srv.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
