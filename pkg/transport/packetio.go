/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/arapat/sparrow-sub000/pkg/protocol"
	"github.com/gorilla/websocket"
)

// PacketConn is one scanner's duplex channel to the head: packets flow one
// way (scanner -> head), tasks the other (head -> scanner). Built on
// gorilla/websocket, the same library the teacher reaches for whenever it
// needs a bidirectional connection (scm/network.go's "websocket" builtin).
type PacketConn struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
}

func newPacketConn(ws *websocket.Conn) *PacketConn {
	return &PacketConn{ws: ws}
}

// SendPacket writes p to the peer.
func (c *PacketConn) SendPacket(p protocol.Packet) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("transport: marshal packet: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// SendTask writes t to the peer.
func (c *PacketConn) SendTask(t protocol.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("transport: marshal task: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ReadPacket blocks for the next packet frame from the peer.
func (c *PacketConn) ReadPacket() (protocol.Packet, error) {
	var p protocol.Packet
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return p, fmt.Errorf("transport: read packet: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("transport: unmarshal packet: %w", err)
	}
	return p, nil
}

// ReadTask blocks for the next task frame from the peer.
func (c *PacketConn) ReadTask() (protocol.Task, error) {
	var t protocol.Task
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return t, fmt.Errorf("transport: read task: %w", err)
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("transport: unmarshal task: %w", err)
	}
	return t, nil
}

func (c *PacketConn) Close() error { return c.ws.Close() }

// DialScanner opens a PacketConn from a scanner to the head's packet
// endpoint.
func DialScanner(url string) (*PacketConn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return newPacketConn(ws), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHead upgrades an incoming scanner connection and hands the resulting
// PacketConn to handle. Intended to be wired into an http.ServeMux at the
// head's packet endpoint.
func ServeHead(handle func(*PacketConn)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(newPacketConn(ws))
	}
}
