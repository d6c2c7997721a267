package ctlplane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"path/filepath"
	"sync"
	"time"

	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/brand"
	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/override"
)

const defaultLogLimit = 1000

// Controller is the part of the override controller the RPC surface drives.
type Controller interface {
	Dispatch(ctx context.Context, command string) (override.Outcome, error)
	Status(ctx context.Context) override.Status
	CheckTTL(ctx context.Context) (override.Sweep, error)
}

// Activator applies the override for allowed URLs.
type Activator interface {
	Activate(ctx context.Context, url string) (override.Activation, error)
}

// AuditLog reads the durable transition trail.
type AuditLog interface {
	Query(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

// Options holds the server's dependencies. Only Controller is required.
type Options struct {
	Controller Controller
	Activator  Activator
	Journal    *events.Journal
	Audit      AuditLog
	Logger     *logging.Logger
	Clock      clock.Clock
}

// Server exports the controller over net/rpc. Exported methods with the
// (args, reply) error signature are RPC endpoints named "Server.<Method>".
type Server struct {
	ctrl      Controller
	activator Activator
	journal   *events.Journal
	audit     AuditLog
	logger    *logging.Logger
	clock     clock.Clock
	startTime time.Time

	rpc *rpc.Server

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewServer creates a control-plane server.
func NewServer(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("ctlplane: controller is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("ctlplane")
	}
	clk := clock.OrReal(opts.Clock)

	s := &Server{
		ctrl:      opts.Controller,
		activator: opts.Activator,
		journal:   opts.Journal,
		audit:     opts.Audit,
		logger:    opts.Logger,
		clock:     clk,
		startTime: clk.Now(),
		rpc:       rpc.NewServer(),
		conns:     make(map[net.Conn]struct{}),
	}
	if err := s.rpc.RegisterName("Server", s); err != nil {
		return nil, fmt.Errorf("register RPC service: %w", err)
	}
	return s, nil
}

// Change runs the change command.
func (s *Server) Change(args *Empty, reply *CommandReply) error {
	s.command(override.CommandChange, reply)
	return nil
}

// Revert runs the revert command.
func (s *Server) Revert(args *Empty, reply *CommandReply) error {
	s.command(override.CommandRevert, reply)
	return nil
}

func (s *Server) command(name string, reply *CommandReply) {
	outcome, err := s.ctrl.Dispatch(context.Background(), name)
	reply.Response = override.OK.Response
	reply.Outcome = outcome
	if err != nil {
		reply.Error = err.Error()
		logging.CtlLog("error", "%s: %s: %v", name, outcome, err)
		return
	}
	logging.CtlLog("info", "%s: %s", name, outcome)
}

// Activate applies the override if args.URL is allowed.
func (s *Server) Activate(args *ActivateArgs, reply *ActivateReply) error {
	if s.activator == nil {
		return errors.New("activation is not configured")
	}
	act, err := s.activator.Activate(context.Background(), args.URL)
	reply.Activation = act
	if err != nil {
		reply.Error = err.Error()
	}
	return nil
}

// GetStatus returns a controller snapshot.
func (s *Server) GetStatus(args *Empty, reply *GetStatusReply) error {
	reply.Status = s.ctrl.Status(context.Background())
	reply.Version = brand.Version
	reply.Uptime = s.clock.Since(s.startTime)
	return nil
}

// CheckTTL runs one sweep immediately.
func (s *Server) CheckTTL(args *Empty, reply *CheckTTLReply) error {
	sweep, err := s.ctrl.CheckTTL(context.Background())
	reply.Sweep = sweep
	if err != nil {
		reply.Error = err.Error()
	}
	return nil
}

// GetHistory returns recent transitions from the journal.
func (s *Server) GetHistory(args *GetHistoryArgs, reply *GetHistoryReply) error {
	if s.journal == nil {
		return errors.New("history is not enabled")
	}
	for _, e := range s.journal.Recent(args.Limit) {
		data, ok := e.Data.(events.TransitionData)
		if !ok {
			continue
		}
		reply.Entries = append(reply.Entries, HistoryEntry{
			Time:    e.Timestamp,
			OpID:    data.OpID,
			Op:      data.Op,
			Trigger: data.Trigger,
			Outcome: data.Outcome,
			Error:   data.Error,
		})
	}
	return nil
}

// GetAudit returns events from the durable audit trail.
func (s *Server) GetAudit(args *GetAuditArgs, reply *GetAuditReply) error {
	if s.audit == nil {
		return errors.New("audit trail is not enabled")
	}
	evts, err := s.audit.Query(context.Background(), audit.Query{
		Op:      args.Op,
		Outcome: args.Outcome,
		Since:   args.Since,
		Limit:   args.Limit,
	})
	if err != nil {
		return err
	}
	reply.Events = evts
	return nil
}

// GetLogs returns entries from the application log buffer.
func (s *Server) GetLogs(args *GetLogsArgs, reply *GetLogsReply) error {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	buf := logging.GetAppLogBuffer()
	if args.Source != "" {
		reply.Entries = buf.GetBySource(args.Source, limit)
	} else {
		reply.Entries = buf.GetLast(limit)
	}
	return nil
}

// Start listens on the Unix socket at path, replacing a stale socket file.
func (s *Server) Start(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	// Group access lets non-root members of the service group use the CLI.
	if err := os.Chmod(path, 0660); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	s.Serve(listener)
	return nil
}

// Serve accepts connections on listener in the background.
func (s *Server) Serve(listener net.Listener) {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("control plane listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Error("accept failed", "error", err)
				}
				return
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.track(conn, false)
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("RPC connection handler panicked", "panic", r)
					}
				}()
				s.rpc.ServeConn(conn)
			}()
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.stopped {
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
