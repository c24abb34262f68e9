package check_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/emailhealth/check"
	"github.com/optimode/emailhealth/types"
)

func probe(dial func(context.Context, string, string) (net.Conn, error), timeout time.Duration) types.ProbeOutcome {
	p := check.NewSMTPProber(check.ProberConfig{HeloDomain: "validator.local", Port: "25", Dial: dial})
	return p.Probe(context.Background(), "mx.example.com", "test@validator.local", "user@example.com", timeout)
}

func TestSMTPProber_Classification(t *testing.T) {
	tests := []struct {
		name      string
		banner    string
		responses map[string]string
		wantTag   types.ProbeTag
		wantStage types.Stage
		wantCode  int
	}{
		{"accepted", "", nil, types.ProbeAccepted, types.StageRcpt, 250},
		{"rejected", "", map[string]string{"RCPT": "550 5.1.1 User unknown"}, types.ProbeRejected, types.StageRcpt, 550},
		{"greylisted", "", map[string]string{"RCPT": "451 4.7.1 Greylisted, try again later"}, types.ProbeTemporaryFailure, types.StageRcpt, 451},
		{"banner busy", "421 Too busy", nil, types.ProbeTemporaryFailure, types.StageBanner, 421},
		{"banner refused", "554 No service", nil, types.ProbeConnectionFailed, types.StageBanner, 554},
		{"helo rejected", "", map[string]string{"EHLO": "550 Go away", "HELO": "550 Go away"}, types.ProbeConnectionFailed, types.StageHelo, 550},
		{"mail from rejected", "", map[string]string{"MAIL": "553 Sender rejected"}, types.ProbeConnectionFailed, types.StageMail, 553},
		{"mail from deferred", "", map[string]string{"MAIL": "450 Try later"}, types.ProbeTemporaryFailure, types.StageMail, 450},
		{"rcpt odd code", "", map[string]string{"RCPT": "354 What?"}, types.ProbeConnectionFailed, types.StageRcpt, 354},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := probe(smtpServer(tt.banner, tt.responses), 2*time.Second)
			assert.Equal(t, tt.wantTag, out.Tag, "message: %s", out.Message)
			assert.Equal(t, tt.wantStage, out.Stage)
			assert.Equal(t, tt.wantCode, out.Code)
			assert.Equal(t, "mx.example.com", out.Host)
		})
	}
}

func TestSMTPProber_ConnectionRefused(t *testing.T) {
	out := probe(func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connect: connection refused")
	}, time.Second)

	assert.Equal(t, types.ProbeConnectionFailed, out.Tag)
	assert.Equal(t, types.StageConnect, out.Stage)
	assert.Contains(t, out.Message, "connection refused")
}

func TestSMTPProber_MalformedReply(t *testing.T) {
	out := probe(smtpServer("garbage", nil), time.Second)
	assert.Equal(t, types.ProbeConnectionFailed, out.Tag)
}

func TestSMTPProber_Timeout(t *testing.T) {
	start := time.Now()
	out := probe(silentServer, 50*time.Millisecond)

	assert.Equal(t, types.ProbeTimeout, out.Tag)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSMTPProber_DialTimeout(t *testing.T) {
	out := probe(func(ctx context.Context, _, _ string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 30*time.Millisecond)

	assert.Equal(t, types.ProbeTimeout, out.Tag)
	assert.Equal(t, types.StageConnect, out.Stage)
}

func TestDescribeReply(t *testing.T) {
	assert.Equal(t, "mailbox accepted", check.DescribeReply(250, "2.1.5 Ok"))
	assert.Equal(t, "mailbox not found", check.DescribeReply(550, "5.1.1 <x@example.com>: Recipient address rejected: User unknown"))
	assert.Equal(t, "mailbox full", check.DescribeReply(552, "5.2.2 Mailbox full"))
	assert.Equal(t, "greylisted, try again later", check.DescribeReply(451, "4.7.1 Greylisted"))
	assert.Equal(t, "relaying denied", check.DescribeReply(554, "5.7.1 Relay access denied"))
	assert.Equal(t, "sender blocked by server policy", check.DescribeReply(554, "Blocked using zen.spamhaus.org"))
	assert.Equal(t, "rejected by server", check.DescribeReply(550, "5.7.0 nope"))
	assert.Equal(t, "temporary failure", check.DescribeReply(421, "4.3.2 closing"))
	assert.Equal(t, "no reply", check.DescribeReply(0, ""))
}
