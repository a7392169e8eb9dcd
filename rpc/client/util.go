package client

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/ValentinKolb/dMap/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger       = logger.GetLogger("client")
	eventsLogger = logger.GetLogger("events")
	cursorLogger = logger.GetLogger("cursor")
)

// withTimeout applies the default request timeout to contexts without a deadline
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// invokeRPCRequest is a helper function used by all named map operations to send requests
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type
func invokeRPCRequest(ctx context.Context, req *common.Message, transport transport.IRPCClientTransport, timeout time.Duration) (*common.Message, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	// Send the request
	resp, err := transport.Invoke(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request %s on %s: %w", req.MsgType, req.Cache, err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, &common.RequestError{Op: req.MsgType.String(), Msg: resp.Err}
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}
