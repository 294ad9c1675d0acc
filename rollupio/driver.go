package rollupio

import (
	"context"
	"time"

	"github.com/Calindra/cartesi-drand/common/log"
)

// Dispatch handles one envelope and returns the status ("accept"/"reject")
// to report on the next finish call.
type Dispatch func(ctx context.Context, env Envelope) string

// Driver runs the generic Cartesi rollup polling loop: post a status,
// receive either idle or an envelope, dispatch, repeat.
type Driver struct {
	Client  *Client
	Backoff time.Duration
	Log     log.Logger
}

// NewDriver builds a Driver with the given backoff between idle polls.
func NewDriver(client *Client, backoff time.Duration, logger log.Logger) *Driver {
	return &Driver{Client: client, Backoff: backoff, Log: logger}
}

// RunLoop polls forever until ctx is cancelled, dispatching every non-idle
// envelope and sleeping Backoff whenever the host is idle or unreachable.
func (d *Driver) RunLoop(ctx context.Context, dispatch Dispatch) {
	status := StatusAccept
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, idle, err := d.Client.Finish(ctx, status)
		switch {
		case err != nil:
			d.Log.Warnw("rollup host unreachable, retrying", "err", err)
			status = StatusAccept
		case idle:
			status = StatusAccept
		default:
			status = dispatch(ctx, *env)
		}

		if err != nil || idle {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.Backoff):
			}
		}
	}
}
