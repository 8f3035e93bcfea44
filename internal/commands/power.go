// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package commands

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wso2/api-platform/gateway/command-bot/internal/command"
	"github.com/wso2/api-platform/gateway/command-bot/pkg/core"
)

const DefaultBroadcast = "255.255.255.255:9"

// Waker powers on a machine by its hardware address.
type Waker interface {
	Wake(ctx context.Context, mac net.HardwareAddr) error
}

// UDPWaker sends Wake-on-LAN magic packets over UDP.
type UDPWaker struct {
	Addr string
}

func (w UDPWaker) Wake(ctx context.Context, mac net.HardwareAddr) error {
	addr := w.Addr
	if addr == "" {
		addr = DefaultBroadcast
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", addr)
	if err != nil {
		return fmt.Errorf("wake dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(MagicPacket(mac)); err != nil {
		return fmt.Errorf("wake send: %w", err)
	}
	return nil
}

// MagicPacket is six 0xFF bytes followed by the address repeated sixteen
// times.
func MagicPacket(mac net.HardwareAddr) []byte {
	var b bytes.Buffer
	b.Write(bytes.Repeat([]byte{0xff}, 6))
	for i := 0; i < 16; i++ {
		b.Write(mac)
	}
	return b.Bytes()
}

type power struct {
	token string
	mac   net.HardwareAddr
	waker Waker
}

func (p power) handle(ctx context.Context, hc command.Context, evt core.Event, args ...string) error {
	if len(args) != 1 {
		return hc.Send(ctx, evt.Channel(), fmt.Sprintf("Usage: %s on|off", p.token))
	}
	switch args[0] {
	case "on":
		if err := hc.Send(ctx, evt.Channel(), "Powering on server."); err != nil {
			return err
		}
		return p.waker.Wake(ctx, p.mac)
	case "off":
		return hc.Send(ctx, evt.Channel(), "Power off not implemented. Sorry! Coming soon!")
	default:
		return hc.Send(ctx, evt.Channel(), fmt.Sprintf("Unknown power state %s", args[0]))
	}
}
