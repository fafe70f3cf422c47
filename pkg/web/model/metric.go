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

package model

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
)

const DefaultHistoryLimit = 100

// HistoryQuery selects persisted snapshots.
type HistoryQuery struct {
	// Since is a unix timestamp in milliseconds.
	Since int64 `form:"since" validate:"gte=0"`
	Limit int   `form:"limit" validate:"omitempty,min=1,max=1000"`
}

func (q *HistoryQuery) Validate() error {
	validate := validator.New()
	return validate.Struct(q)
}

func (q *HistoryQuery) SinceTime() time.Time {
	return time.UnixMilli(q.Since)
}

func (q *HistoryQuery) EffectiveLimit() int {
	if q.Limit == 0 {
		return DefaultHistoryLimit
	}
	return q.Limit
}

type HistoryResponse struct {
	Count     int                 `json:"count"`
	Snapshots []snapshot.Snapshot `json:"snapshots"`
}
