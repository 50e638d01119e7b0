package adapter

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

// classifyNetErr maps a transport-layer error to a svcerr.Category,
// mirroring the shape of aistore's awsErrorToAISError: one small per-adapter
// function that turns an opaque client error into the taxonomy the rest of
// the service reasons about (§7).
func classifyNetErr(err error, tag string) *svcerr.Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return svcerr.New(svcerr.ConnectionTimeout, err, "%s: timed out", tag)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return svcerr.New(svcerr.ConnectionTimeout, err, "%s: network timeout", tag)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "auth"), strings.Contains(msg, "credential"), strings.Contains(msg, "530"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return svcerr.New(svcerr.AuthenticationFailure, err, "%s: authentication failed", tag)
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "connect:"):
		return svcerr.New(svcerr.ConnectionTimeout, err, "%s: connection failed", tag)
	default:
		return svcerr.New(svcerr.ProtocolError, err, "%s: protocol error", tag)
	}
}
