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

package flag

import "time"

var (
	// ServerPort controls the HTTP listener port.
	ServerPort int

	// ServerLogLevel controls the server log verbosity.
	ServerLogLevel int

	// ServerAccessToken guards API entrypoints when set.
	ServerAccessToken string

	// CORSOrigins lists the allowed browser origins, "*" for any.
	CORSOrigins []string

	// HTTPSMode serves TLS with the certificate files below.
	HTTPSMode   bool
	TLSKeyFile  string
	TLSCertFile string
	TLSCABundle string

	// CollectInterval is the pause between two collection cycles.
	CollectInterval time.Duration

	// ProbeTimeout bounds one collection, retries included.
	ProbeTimeout time.Duration

	// ProbeRetries is the number of extra attempts after a transient total failure.
	ProbeRetries int

	TopProcesses int

	// Glob patterns of devices left out of the aggregates.
	ExcludeInterfaces []string
	ExcludeMounts     []string
	ExcludeFSTypes    []string

	// HistoryDriver enables snapshot persistence, "sqlite" or "mysql".
	HistoryDriver    string
	HistoryDSN       string
	HistoryRetention time.Duration

	// ApiGracefulShutdownTimeout waits before tearing down open streams.
	ApiGracefulShutdownTimeout time.Duration
)
