// Package listener adapts the teacher plugin's udpListen/tcpListen/
// handler/remember/forget/refuser lifecycle (plugins/inputs/statsd/
// statsd.go) into a protocol-agnostic ingestion front end for the
// sampling engine: decode each line with statsdline, hand the result to
// Engine.Consider, and forward the verbatim line to ForwardWriter when
// the engine reports NotSampling (the pass-through forwarding feature
// SPEC_FULL.md adds over spec.md's engine-only scope).
package listener

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lyft/statsrelay/internal/sampling"
	"github.com/lyft/statsrelay/internal/statsdline"
)

const udpMaxPacketSize = 65535

// Engine is the subset of engine.Engine (or shard.Set) a Listener drives.
type Engine interface {
	Consider(key string, obs statsdline.Observation) sampling.Result
}

// Logger is satisfied by logrus's *logrus.Logger / *logrus.Entry.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// RejectionSink receives a reason label for every line the parser
// rejects, so internal/stats can count them.
type RejectionSink func(reason statsdline.Reason)

// ReceiveSink receives the protocol label ("udp" or "tcp") for every
// raw line ingested, ahead of parsing, so internal/stats can count
// inbound volume independent of parse success.
type ReceiveSink func(proto string)

// Listener owns a UDP and/or TCP front end. Zero value is not usable;
// construct with New.
type Listener struct {
	Engine         Engine
	Log            Logger
	ForwardWriter  *bufio.Writer // nil disables pass-through forwarding
	OnRejected     RejectionSink
	OnReceived     ReceiveSink
	MaxConnections int
	PendingQueue   int

	udpConn *net.UDPConn
	tcpLn   *net.TCPListener

	accept chan struct{}
	conns  map[string]net.Conn
	mu     sync.Mutex

	dropLimiter *rate.Limiter
	drops       int64

	done chan struct{}
	wg   sync.WaitGroup
}

// New builds a Listener ready to have ListenUDP/ListenTCP called on it.
func New(engine Engine, log Logger, maxConnections, pendingQueue int) *Listener {
	return &Listener{
		Engine:         engine,
		Log:            log,
		MaxConnections: maxConnections,
		PendingQueue:   pendingQueue,
		conns:          make(map[string]net.Conn),
		accept:         make(chan struct{}, maxConnections),
		dropLimiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		done:           make(chan struct{}),
	}
}

// ListenUDP binds addr and starts the UDP read loop in a goroutine.
func (l *Listener) ListenUDP(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.udpConn = conn
	l.Log.Infof("udp listening on %q", conn.LocalAddr().String())

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.udpLoop(conn)
	}()
	return nil
}

// ListenTCP binds addr and starts the TCP accept loop in a goroutine.
func (l *Listener) ListenTCP(addr string) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}
	l.tcpLn = ln
	l.Log.Infof("tcp listening on %q", ln.Addr().String())

	for i := 0; i < l.MaxConnections; i++ {
		l.accept <- struct{}{}
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.tcpLoop(ln)
	}()
	return nil
}

// Stop closes all listeners and connections and waits for goroutines
// to exit, mirroring the teacher's Stop().
func (l *Listener) Stop() {
	close(l.done)
	if l.udpConn != nil {
		l.udpConn.Close()
	}
	if l.tcpLn != nil {
		l.tcpLn.Close()
	}
	l.mu.Lock()
	conns := make([]net.Conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	l.wg.Wait()
}

func (l *Listener) udpLoop(conn *net.UDPConn) {
	buf := make([]byte, udpMaxPacketSize)
	parser := statsdline.NewParser()
	for {
		select {
		case <-l.done:
			return
		default:
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if strings.Contains(err.Error(), "closed network") {
				return
			}
			l.Log.Errorf("udp read: %s", err)
			continue
		}
		l.ingest(parser, "udp", buf[:n])
	}
}

func (l *Listener) tcpLoop(ln *net.TCPListener) {
	for {
		select {
		case <-l.done:
			return
		default:
		}
		conn, err := ln.AcceptTCP()
		if err != nil {
			if strings.Contains(err.Error(), "closed network") {
				return
			}
			l.Log.Errorf("tcp accept: %s", err)
			return
		}

		select {
		case <-l.accept:
			id := uuid.NewString()
			l.remember(id, conn)
			l.wg.Add(1)
			go l.handle(conn, id)
		default:
			l.refuse(conn)
		}
	}
}

func (l *Listener) handle(conn *net.TCPConn, id string) {
	defer func() {
		conn.Close()
		l.forget(id)
		l.accept <- struct{}{}
		l.wg.Done()
	}()

	parser := statsdline.NewParser()
	scanner := bufio.NewScanner(conn)
	for {
		select {
		case <-l.done:
			return
		default:
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		l.ingest(parser, "tcp", line)
	}
}

func (l *Listener) ingest(parser *statsdline.Parser, proto string, raw []byte) {
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if l.OnReceived != nil {
			l.OnReceived(proto)
		}
		obs, err := parser.Parse(line)
		if err != nil {
			l.reportRejection(err)
			continue
		}
		if l.Engine.Consider(obs.Key, obs) == sampling.NotSampling {
			l.forward(line)
		}
	}
}

func (l *Listener) reportRejection(err error) {
	var invalid *statsdline.InvalidLine
	if errors.As(err, &invalid) && l.OnRejected != nil {
		l.OnRejected(invalid.Reason)
	}
}

func (l *Listener) forward(line []byte) {
	if l.ForwardWriter == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ForwardWriter.Write(line)
	l.ForwardWriter.WriteByte('\n')
}

func (l *Listener) refuse(conn *net.TCPConn) {
	conn.Close()
	if l.dropLimiter.Allow() {
		l.Log.Warnf("refused tcp connection from %s: max_tcp_connections reached", conn.RemoteAddr())
	}
}

func (l *Listener) remember(id string, conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conns[id] = conn
}

func (l *Listener) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, id)
}

// ShutdownOnDone starts a goroutine that calls Stop once ctx is done,
// giving callers a context.Context-aware shutdown hook.
func (l *Listener) ShutdownOnDone(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.Stop()
	}()
}
