package check_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// startDNS serves a tiny fixed zone on a random local UDP port.
func startDNS(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		switch {
		case q.Name == "example.com." && q.Qtype == dns.TypeMX:
			for _, s := range []string{
				"example.com. 300 IN MX 20 mx2.example.com.",
				"example.com. 300 IN MX 10 mx1.example.com.",
			} {
				rr, _ := dns.NewRR(s)
				m.Answer = append(m.Answer, rr)
			}
		case q.Name == "broken.example.":
			m.SetRcode(r, dns.RcodeServerFailure)
		case q.Name != "example.com.":
			m.SetRcode(r, dns.RcodeNameError)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

// smtpServer returns a dial func backed by a net.Pipe SMTP server.
// Commands are matched by prefix; unmatched commands get "250 OK".
func smtpServer(banner string, responses map[string]string) func(context.Context, string, string) (net.Conn, error) {
	if banner == "" {
		banner = "220 fake.smtp ESMTP"
	}
	return func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer func() { _ = server.Close() }()
			if _, err := fmt.Fprintf(server, "%s\r\n", banner); err != nil {
				return
			}
			scanner := bufio.NewScanner(server)
			for scanner.Scan() {
				line := scanner.Text()
				if strings.HasPrefix(line, "QUIT") {
					_, _ = fmt.Fprint(server, "221 Bye\r\n")
					return
				}
				resp := "250 OK"
				for prefix, r := range responses {
					if strings.HasPrefix(line, prefix) {
						resp = r
						break
					}
				}
				if _, err := fmt.Fprintf(server, "%s\r\n", resp); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
}

// silentServer accepts the connection and never says anything.
func silentServer(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		_, _ = server.Read(make([]byte, 1))
		_ = server.Close()
	}()
	return client, nil
}
