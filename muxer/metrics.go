// Copyright 2025 Blink Labs Software
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

package muxer

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "ouroboros"
	metricsSubsystem = "muxer"

	directionIn  = "in"
	directionOut = "out"
)

// Metrics holds the prometheus collectors updated by a Muxer
type Metrics struct {
	segmentsTotal *prometheus.CounterVec
	bytesTotal    *prometheus.CounterVec
}

// NewMetrics creates the muxer collectors and registers them with the provided
// registerer. Collectors already registered by an earlier call are reused, so several
// connections can report into the same registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		segmentsTotal: registerCounterVec(
			reg,
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: metricsSubsystem,
					Name:      "segments_total",
					Help:      "Total number of segments sent or received",
				},
				[]string{"direction", "protocol"},
			),
		),
		bytesTotal: registerCounterVec(
			reg,
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: metricsSubsystem,
					Name:      "payload_bytes_total",
					Help:      "Total number of segment payload bytes sent or received",
				},
				[]string{"direction", "protocol"},
			),
		),
	}
}

func registerCounterVec(
	reg prometheus.Registerer,
	cv *prometheus.CounterVec,
) *prometheus.CounterVec {
	if err := reg.Register(cv); err != nil {
		var alreadyErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyErr) {
			if existing, ok := alreadyErr.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		// The collector still counts, it just isn't exported
		return cv
	}
	return cv
}

func (m *Metrics) observe(direction string, segment *Segment) {
	if m == nil {
		return
	}
	protocol := strconv.FormatUint(uint64(segment.GetProtocolId()), 10)
	m.segmentsTotal.WithLabelValues(direction, protocol).Inc()
	m.bytesTotal.WithLabelValues(direction, protocol).
		Add(float64(len(segment.Payload)))
}
