package channel

import (
	"fmt"
	"net"
	"time"

	"github.com/avsej/gocbcore-lite/codec"
)

// rawAuthContinue is the wire status for PROTOCOL_BINARY_RESPONSE_AUTH_CONTINUE,
// returned mid SASL handshake; it isn't a terminal status so it has no entry
// in codec's normalized Status enum.
const rawAuthContinue uint16 = 0x21

// rawRoundTripper performs single outstanding request/response round trips
// directly over a net.Conn, before the endpoint's opaque-keyed demux loop
// is running. Bootstrap never has more than one frame in flight, so it
// doesn't need the Endpoint's concurrency machinery.
type rawRoundTripper struct {
	conn     net.Conn
	deadline time.Time
	opaque   uint32
}

func (rt *rawRoundTripper) roundTrip(opcode codec.Opcode, vbucket uint16, extras, key, value []byte) (*codec.Frame, error) {
	if !rt.deadline.IsZero() {
		if err := rt.conn.SetDeadline(rt.deadline); err != nil {
			return nil, err
		}
	}
	rt.opaque++
	if err := codec.EncodeRequest(rt.conn, opcode, vbucket, rt.opaque, 0, 0, extras, key, value); err != nil {
		return nil, fmt.Errorf("channel: bootstrap write: %w", err)
	}
	frame, err := codec.Decode(rt.conn)
	if err != nil {
		return nil, fmt.Errorf("channel: bootstrap read: %w", err)
	}
	return frame, nil
}

func (rt *rawRoundTripper) listMechs() ([]string, error) {
	resp, err := rt.roundTrip(codec.OpSaslListMechs, 0, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	if status, _ := resp.Status(); status != codec.StatusSuccess {
		return nil, fmt.Errorf("channel: sasl list mechs failed")
	}
	return splitMechs(resp.Value), nil
}

func splitMechs(body []byte) []string {
	var mechs []string
	start := 0
	for i := 0; i <= len(body); i++ {
		if i == len(body) || body[i] == ' ' {
			if i > start {
				mechs = append(mechs, string(body[start:i]))
			}
			start = i + 1
		}
	}
	return mechs
}

// saslStep performs one AUTH or STEP round trip, reporting whether the
// server wants another round (AUTH_CONTINUE) or has terminated the
// exchange (success or a hard failure status).
func (rt *rawRoundTripper) saslStep(opcode codec.Opcode, mechanism string, payload []byte) ([]byte, bool, error) {
	resp, err := rt.roundTrip(opcode, 0, nil, []byte(mechanism), payload)
	if err != nil {
		return nil, false, err
	}
	_, raw := resp.Status()
	if raw == rawAuthContinue {
		return resp.Value, true, nil
	}
	if raw != 0 {
		return nil, false, fmt.Errorf("channel: sasl step failed, status=0x%04x", raw)
	}
	return resp.Value, false, nil
}
