// Copyright 2023 LiveKit, Inc.
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

// Package service hosts the UDP receive loop. Incoming datagrams are
// demultiplexed into RTP and RTCP, routed to a per-SSRC engine, and the
// engines' reports and feedback are sent back to the media source.
package service

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtpengine/pkg/config"
	"github.com/livekit/rtpengine/pkg/engine"
	"github.com/livekit/rtpengine/pkg/engine/buffer"
	"github.com/livekit/rtpengine/pkg/engine/rtcp"
)

const (
	maxDatagramSize = 1500
	packetQueueSize = 512
)

// MediaHandler consumes decoded payloads as streams produce them.
type MediaHandler func(ssrc uint32, payload *buffer.MediaPayload)

type datagram struct {
	data    []byte
	addr    *net.UDPAddr
	arrival time.Time
}

// stream pairs an engine with the address reports go back to. The address
// follows the sender, symmetric RTP style.
type stream struct {
	engine *engine.Engine
	addr   *net.UDPAddr
}

type Receiver struct {
	conf   *config.Config
	logger logger.Logger

	conn          *net.UDPConn
	metricsServer *http.Server

	// owned by the processing goroutine
	streams map[uint32]*stream
	onMedia MediaHandler

	packets chan datagram
	running atomic.Bool
	done    chan struct{}
}

func NewReceiver(conf *config.Config, l logger.Logger) *Receiver {
	return &Receiver{
		conf:    conf,
		logger:  l,
		streams: make(map[uint32]*stream),
		packets: make(chan datagram, packetQueueSize),
		done:    make(chan struct{}),
	}
}

// OnMedia installs the playout consumer. Must be set before Start.
func (r *Receiver) OnMedia(handler MediaHandler) {
	r.onMedia = handler
}

func (r *Receiver) IsRunning() bool {
	return r.running.Load()
}

// Start binds the RTP socket and blocks processing packets until Stop is
// called.
func (r *Receiver) Start() error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("already running")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{
		IP:   net.ParseIP(r.conf.BindAddress),
		Port: int(r.conf.Port),
	})
	if err != nil {
		return errors.Wrap(err, "could not bind RTP socket")
	}
	r.conn = conn

	if r.conf.PrometheusPort != 0 {
		r.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", r.conf.PrometheusPort),
			Handler: promhttp.Handler(),
		}
		ln, err := net.Listen("tcp", r.metricsServer.Addr)
		if err != nil {
			_ = conn.Close()
			return errors.Wrap(err, "could not bind metrics port")
		}
		go r.metricsServer.Serve(ln)
	}

	r.logger.Infow("starting rtpengine receiver",
		"address", conn.LocalAddr().String(),
		"nodeID", r.conf.NodeID,
	)

	go r.readLoop()
	r.processLoop()
	return nil
}

func (r *Receiver) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	close(r.done)
	if r.conn != nil {
		_ = r.conn.Close()
	}
	if r.metricsServer != nil {
		_ = r.metricsServer.Close()
	}
}

// ------------------------------------------------

func (r *Receiver) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if r.running.Load() {
				r.logger.Warnw("read failed", err)
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case r.packets <- datagram{data: data, addr: addr, arrival: time.Now()}:
		default:
			r.logger.Warnw("packet queue full, dropping datagram", nil, "from", addr.String())
		}
	}
}

// processLoop keeps all engine access on one goroutine, so the engines
// themselves need no locking.
func (r *Receiver) processLoop() {
	tickTicker := time.NewTicker(r.conf.TickInterval)
	defer tickTicker.Stop()
	reportTicker := time.NewTicker(r.conf.ReportInterval)
	defer reportTicker.Stop()
	statsTicker := time.NewTicker(config.StatsUpdateInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-r.done:
			return
		case d := <-r.packets:
			r.handleDatagram(d)
		case now := <-tickTicker.C:
			r.tick(now)
		case now := <-reportTicker.C:
			r.sendReports(now)
		case <-statsTicker.C:
			r.logStats()
		}
	}
}

func (r *Receiver) handleDatagram(d datagram) {
	if len(d.data) < 8 {
		return
	}

	if isRTCP(d.data) {
		// for sender reports the packet sender SSRC is the media SSRC
		s := r.streamFor(binary.BigEndian.Uint32(d.data[4:8]), d.addr)
		if err := s.engine.ProcessRTCP(d.data, d.arrival); err != nil {
			r.logger.Warnw("could not process RTCP", err, "from", d.addr.String())
		}
		return
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(d.data); err != nil {
		r.logger.Warnw("could not parse RTP packet", err, "from", d.addr.String())
		return
	}

	s := r.streamFor(pkt.SSRC, d.addr)
	s.addr = d.addr
	if _, err := s.engine.ProcessPacket(pkt, d.arrival); err != nil {
		r.logger.Warnw("could not process packet", err, "ssrc", pkt.SSRC)
	}
	r.drainMedia(pkt.SSRC, s.engine)
}

func (r *Receiver) tick(now time.Time) {
	for ssrc, s := range r.streams {
		if _, err := s.engine.Tick(now); err != nil {
			r.logger.Warnw("tick failed", err, "ssrc", ssrc)
		}
		r.drainMedia(ssrc, s.engine)

		packets, err := s.engine.PollFeedback(now)
		if err != nil {
			r.logger.Warnw("could not build feedback", err, "ssrc", ssrc)
			continue
		}
		if len(packets) > 0 {
			r.sendTo(joinCompound(packets), s.addr)
		}
	}
}

func (r *Receiver) sendReports(now time.Time) {
	for ssrc, s := range r.streams {
		data, err := rtcp.Serialize(s.engine.BuildReceiverReport(now))
		if err != nil {
			r.logger.Warnw("could not serialize receiver report", err, "ssrc", ssrc)
			continue
		}
		r.sendTo(data, s.addr)
	}
}

func (r *Receiver) drainMedia(ssrc uint32, e *engine.Engine) {
	for {
		payload, ok := e.PopMedia()
		if !ok {
			return
		}
		if r.onMedia != nil {
			r.onMedia(ssrc, payload)
		}
	}
}

func (r *Receiver) sendTo(data []byte, addr *net.UDPAddr) {
	if r.conn == nil || addr == nil {
		return
	}
	if _, err := r.conn.WriteToUDP(data, addr); err != nil {
		r.logger.Warnw("send failed", err, "to", addr.String())
	}
}

func (r *Receiver) logStats() {
	for ssrc, s := range r.streams {
		stats := s.engine.Stats()
		r.logger.Debugw("stream stats",
			"ssrc", ssrc,
			"packets", stats.PacketsReceived,
			"lost", stats.PacketsLost,
			"jitterMs", stats.JitterMs,
			"bitrate", stats.EstimatedBitrate,
			"quality", stats.QualityScore,
			"mos", stats.MOS,
		)
	}
}

func (r *Receiver) streamFor(ssrc uint32, addr *net.UDPAddr) *stream {
	s, ok := r.streams[ssrc]
	if !ok {
		s = &stream{
			engine: engine.NewEngine(engine.EngineParams{
				Config: r.conf.Engine,
				Logger: r.logger.WithValues("ssrc", ssrc),
			}),
			addr: addr,
		}
		r.streams[ssrc] = s
		r.logger.Infow("new stream", "ssrc", ssrc, "from", addr.String())
	}
	return s
}

// isRTCP applies the RFC 5761 demultiplexing rule: RTCP packet types
// occupy 200-206, which RTP payload types cannot reach with the marker
// bit interpretation in use.
func isRTCP(data []byte) bool {
	return data[1] >= 200 && data[1] <= 206
}

func joinCompound(packets [][]byte) []byte {
	size := 0
	for _, p := range packets {
		size += len(p)
	}
	compound := make([]byte, 0, size)
	for _, p := range packets {
		compound = append(compound, p...)
	}
	return compound
}
