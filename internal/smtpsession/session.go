// Package smtpsession runs a single, throw-away SMTP conversation up to the
// RCPT TO command. It never sends DATA, and every exit path closes the
// connection.
package smtpsession

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/optimode/emailhealth/types"
)

// DialFunc opens a network connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config configures a session.
type Config struct {
	HeloDomain string
	MailFrom   string
	Port       string
	// Dial is injectable for testing. Defaults to a plain net.Dialer.
	Dial DialFunc
}

// Result is where a conversation stopped and what the server said there.
// Err is set for transport and protocol failures (no usable reply);
// otherwise Code and Message hold the last reply.
type Result struct {
	Stage   types.Stage
	Code    int
	Message string
	Err     error
}

// ErrMalformedReply is wrapped when the server sends something that is not
// an SMTP reply.
var ErrMalformedReply = errors.New("smtpsession: malformed reply")

type conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
}

// Run connects to host and walks banner → EHLO/HELO → MAIL FROM → RCPT TO.
// It stops at the first non-success reply. ctx bounds the whole
// conversation: its deadline becomes the connection deadline, and
// cancelling it interrupts blocked reads.
func Run(ctx context.Context, cfg Config, host, rcpt string) Result {
	if cfg.Dial == nil {
		cfg.Dial = (&net.Dialer{}).DialContext
	}
	if cfg.Port == "" {
		cfg.Port = "25"
	}

	address := net.JoinHostPort(host, cfg.Port)
	netConn, err := cfg.Dial(ctx, "tcp", address)
	if err != nil {
		return Result{Stage: types.StageConnect, Err: fmt.Errorf("connect to %s: %w", address, err)}
	}
	defer func() { _ = netConn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err := netConn.SetDeadline(deadline); err != nil {
			return Result{Stage: types.StageConnect, Err: fmt.Errorf("set deadline: %w", err)}
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = netConn.SetDeadline(time.Now()) })
	defer stop()

	c := &conn{
		netConn: netConn,
		reader:  bufio.NewReader(netConn),
		writer:  bufio.NewWriter(netConn),
	}

	res := c.converse(cfg, rcpt)
	if res.Err == nil && ctx.Err() == nil {
		sendQuit(c)
	}
	return res
}

func (c *conn) converse(cfg Config, rcpt string) Result {
	// Banner
	code, msg, err := readResponse(c.reader)
	if err != nil {
		return Result{Stage: types.StageBanner, Err: fmt.Errorf("read banner: %w", err)}
	}
	if code >= 300 {
		return Result{Stage: types.StageBanner, Code: code, Message: msg}
	}

	// EHLO, HELO for servers that do not speak ESMTP
	code, msg, err = command(c, fmt.Sprintf("EHLO %s\r\n", cfg.HeloDomain))
	if err != nil {
		return Result{Stage: types.StageHelo, Err: fmt.Errorf("EHLO failed: %w", err)}
	}
	if code >= 500 {
		code, msg, err = command(c, fmt.Sprintf("HELO %s\r\n", cfg.HeloDomain))
		if err != nil {
			return Result{Stage: types.StageHelo, Err: fmt.Errorf("HELO failed: %w", err)}
		}
	}
	if code >= 300 {
		return Result{Stage: types.StageHelo, Code: code, Message: msg}
	}

	// MAIL FROM
	code, msg, err = command(c, fmt.Sprintf("MAIL FROM:<%s>\r\n", cfg.MailFrom))
	if err != nil {
		return Result{Stage: types.StageMail, Err: fmt.Errorf("MAIL FROM failed: %w", err)}
	}
	if code >= 300 {
		return Result{Stage: types.StageMail, Code: code, Message: msg}
	}

	// RCPT TO
	code, msg, err = command(c, fmt.Sprintf("RCPT TO:<%s>\r\n", rcpt))
	if err != nil {
		return Result{Stage: types.StageRcpt, Err: fmt.Errorf("RCPT TO failed: %w", err)}
	}
	return Result{Stage: types.StageRcpt, Code: code, Message: msg}
}

// command sends an SMTP command and reads the response.
func command(c *conn, cmd string) (int, string, error) {
	if _, err := c.writer.WriteString(cmd); err != nil {
		return 0, "", err
	}
	if err := c.writer.Flush(); err != nil {
		return 0, "", err
	}
	return readResponse(c.reader)
}

// sendQuit aborts the transaction and says goodbye (best-effort, ignores errors).
func sendQuit(c *conn) {
	_ = c.netConn.SetDeadline(time.Now().Add(2 * time.Second))
	_, _ = c.writer.WriteString("RSET\r\nQUIT\r\n")
	_ = c.writer.Flush()
}

// readResponse reads a (possibly multi-line) SMTP response.
func readResponse(r *bufio.Reader) (code int, full string, err error) {
	var lines []string
	for {
		line, readErr := r.ReadString('\n')
		if readErr != nil {
			return 0, "", fmt.Errorf("read SMTP response: %w", readErr)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return 0, "", fmt.Errorf("%w: line too short", ErrMalformedReply)
		}
		lines = append(lines, line)
		// If the 4th character is not '-', this is the last line
		if len(line) < 4 || line[3] != '-' {
			break
		}
	}

	lastLine := lines[len(lines)-1]
	if _, err := fmt.Sscanf(lastLine[:3], "%d", &code); err != nil || code < 100 || code > 599 {
		return 0, "", fmt.Errorf("%w: code %q", ErrMalformedReply, lastLine[:3])
	}
	return code, strings.Join(lines, " | "), nil
}
