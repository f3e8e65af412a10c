package onnxrt

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quantsmith/quantsmith/internal/engine"
	"github.com/sirupsen/logrus"
)

//go:embed worker.py
var workerScript string

// Runtime serves engine.InferenceEngine with an onnxruntime worker process
type Runtime struct {
	tc *Toolchain
}

// NewRuntime creates an inference engine bound to a toolchain
func NewRuntime(tc *Toolchain) *Runtime {
	return &Runtime{tc: tc}
}

type workerRequest struct {
	Op    string  `json:"op"`
	Shape []int64 `json:"shape,omitempty"`
	Bytes int     `json:"bytes,omitempty"`
	Slot  int     `json:"slot"`
}

type workerReply struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Input     string `json:"input,omitempty"`
	Type      string `json:"type,omitempty"`
	Slot      int    `json:"slot"`
	ElapsedNs int64  `json:"elapsed_ns,omitempty"`
}

// Session is a loaded worker process
type Session struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	w      *bufio.Writer
	r      *bufio.Reader
	stderr *syncBuffer
	input  string
	dtype  string
	closed bool
}

// Load implements engine.InferenceEngine. The worker is started with the
// requested intra-op thread count and answers once the session is built.
func (rt *Runtime) Load(ctx context.Context, path string, threads int) (engine.Session, error) {
	cmd := exec.CommandContext(ctx, rt.tc.Python, "-u", "-c", workerScript, path, strconv.Itoa(threads))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start inference worker: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		w:      bufio.NewWriter(stdin),
		r:      bufio.NewReader(stdout),
		stderr: stderr,
	}

	hello, err := s.read()
	if err != nil {
		s.kill()
		return nil, err
	}
	if !hello.OK {
		s.kill()
		return nil, errors.New(hello.Error)
	}
	s.input = hello.Input
	s.dtype = hello.Type

	rt.tc.Logger.WithFields(logrus.Fields{
		"input":   s.input,
		"type":    s.dtype,
		"threads": threads,
	}).Debug("inference session loaded")
	return s, nil
}

// InputName returns the graph's first input name
func (s *Session) InputName() string {
	return s.input
}

// InputType returns the graph input's element type as reported by the
// worker. Staged float32 data is cast to it worker-side.
func (s *Session) InputType() string {
	return s.dtype
}

// Stage implements engine.Session
func (s *Session) Stage(ctx context.Context, input engine.Tensor) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.Len() != len(input.Data) {
		return 0, fmt.Errorf("tensor shape %v does not match %d elements", input.Shape, len(input.Data))
	}

	req := workerRequest{Op: "stage", Shape: input.Shape, Bytes: 4 * len(input.Data)}
	if err := s.writeHeader(req); err != nil {
		return 0, err
	}

	buf := make([]byte, 4)
	for _, v := range input.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := s.w.Write(buf); err != nil {
			return 0, err
		}
	}

	rep, err := s.roundTrip()
	if err != nil {
		return 0, err
	}
	return rep.Slot, nil
}

// Run implements engine.Session. The returned duration is timed inside the
// worker around the forward pass alone, excluding pipe round trips.
func (s *Session) Run(ctx context.Context, slot int) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeHeader(workerRequest{Op: "run", Slot: slot}); err != nil {
		return 0, err
	}
	rep, err := s.roundTrip()
	if err != nil {
		return 0, err
	}
	return time.Duration(rep.ElapsedNs), nil
}

// Close implements engine.Session
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writeHeader(workerRequest{Op: "close"}); err == nil {
		s.roundTrip()
	}
	s.stdin.Close()
	return s.cmd.Wait()
}

func (s *Session) writeHeader(req workerRequest) error {
	if s.closed {
		return errors.New("session closed")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return s.workerErr(err)
	}
	return nil
}

func (s *Session) roundTrip() (workerReply, error) {
	if err := s.w.Flush(); err != nil {
		return workerReply{}, s.workerErr(err)
	}
	rep, err := s.read()
	if err != nil {
		return rep, err
	}
	if !rep.OK {
		return rep, errors.New(rep.Error)
	}
	return rep, nil
}

func (s *Session) read() (workerReply, error) {
	var rep workerReply
	line, err := s.r.ReadBytes('\n')
	if err != nil {
		return rep, s.workerErr(err)
	}
	if err := json.Unmarshal(line, &rep); err != nil {
		return rep, fmt.Errorf("malformed worker reply %q: %w", strings.TrimSpace(string(line)), err)
	}
	return rep, nil
}

func (s *Session) workerErr(err error) error {
	if tail := lastLines(s.stderr.String(), 5); tail != "" {
		return fmt.Errorf("inference worker: %w: %s", err, tail)
	}
	return fmt.Errorf("inference worker: %w", err)
}

func (s *Session) kill() {
	s.closed = true
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
}

// syncBuffer collects worker stderr written by the exec copier goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
