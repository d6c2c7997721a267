package ctlplane

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"sync"
	"syscall"

	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/logging"
)

// Client talks to the daemon over its control socket. A dropped connection
// (daemon restarted, socket recreated) is redialled once per call.
type Client struct {
	path string

	mu     sync.Mutex
	client *rpc.Client
}

var _ ControlPlaneClient = (*Client)(nil)

// NewClient connects to the control plane socket at path.
func NewClient(path string) (*Client, error) {
	client, err := rpc.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control plane at %s: %w", path, err)
	}
	return &Client{path: path, client: client}, nil
}

// Close closes the connection. The next call dials again.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// conn returns the live connection, dialling when there is none or when
// stale is the connection a caller just saw fail.
func (c *Client) conn(stale *rpc.Client) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.client != stale {
		return c.client, nil
	}
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	client, err := rpc.Dial("unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to reconnect to control plane: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *Client) call(method string, args, reply any) error {
	client, err := c.conn(nil)
	if err != nil {
		return err
	}
	err = client.Call(method, args, reply)
	if err == nil || !connectionLost(err) {
		return err
	}

	client, dialErr := c.conn(client)
	if dialErr != nil {
		return fmt.Errorf("%s failed (%v) and %w", method, err, dialErr)
	}
	return client.Call(method, args, reply)
}

// connectionLost reports whether err means the socket went away, as opposed
// to an error returned by the server method itself.
func connectionLost(err error) bool {
	return errors.Is(err, rpc.ErrShutdown) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// Change runs the change command.
func (c *Client) Change() (*CommandReply, error) {
	var reply CommandReply
	if err := c.call("Server.Change", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Revert runs the revert command.
func (c *Client) Revert() (*CommandReply, error) {
	var reply CommandReply
	if err := c.call("Server.Revert", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Activate asks the daemon to apply the override for url.
func (c *Client) Activate(url string) (*ActivateReply, error) {
	var reply ActivateReply
	if err := c.call("Server.Activate", &ActivateArgs{URL: url}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// CheckTTL runs one sweep immediately.
func (c *Client) CheckTTL() (*CheckTTLReply, error) {
	var reply CheckTTLReply
	if err := c.call("Server.CheckTTL", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// GetStatus returns the controller snapshot.
func (c *Client) GetStatus() (*GetStatusReply, error) {
	var reply GetStatusReply
	if err := c.call("Server.GetStatus", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// GetHistory returns up to limit recent transitions, newest last.
func (c *Client) GetHistory(limit int) ([]HistoryEntry, error) {
	var reply GetHistoryReply
	if err := c.call("Server.GetHistory", &GetHistoryArgs{Limit: limit}, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

// GetAudit queries the daemon's durable audit trail.
func (c *Client) GetAudit(args *GetAuditArgs) ([]audit.Event, error) {
	var reply GetAuditReply
	if err := c.call("Server.GetAudit", args, &reply); err != nil {
		return nil, err
	}
	return reply.Events, nil
}

// GetLogs returns application log entries.
func (c *Client) GetLogs(args *GetLogsArgs) ([]logging.AppLogEntry, error) {
	var reply GetLogsReply
	if err := c.call("Server.GetLogs", args, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}
