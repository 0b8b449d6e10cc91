package server

import (
	"net"
	"sync"

	"github.com/eternalApril/lettuce/internal/resp"
	"github.com/oklog/ulid/v2"
)

// Peer represents a connected client.
// It wraps a network connection and provides synchronized methods for reading and writing RESP-encoded data
type Peer struct {
	id     ulid.ULID
	conn   net.Conn
	reader *resp.Decoder
	writer *resp.Encoder
	mu     sync.Mutex
}

// NewPeer initializes a new client peer from a network connection.
// readBuffer bounds the length of one protocol line
func NewPeer(conn net.Conn, readBuffer int) *Peer {
	if readBuffer <= 0 {
		readBuffer = resp.DefaultBufferSize
	}

	return &Peer{
		id:     ulid.Make(),
		conn:   conn,
		reader: resp.NewDecoderSize(conn, readBuffer),
		writer: resp.NewEncoder(conn),
	}
}

// ID returns the unique, time-ordered identifier of the connection
func (p *Peer) ID() string {
	return p.id.String()
}

// RemoteAddr returns the client address
func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

// Send encodes and writes a RESP value to the client.
// This method is thread-safe and can be called from multiple goroutines
func (p *Peer) Send(v resp.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Write(v)
}

// ReadCommand reads and decodes the next command from the client's input stream
func (p *Peer) ReadCommand() ([]string, error) {
	return p.reader.ReadCommand()
}

// Close terminates the underlying network connection
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Flush sends all buffered data to the client
func (p *Peer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Flush()
}

// InputBuffered returns the number of bytes that can be read from the current buffer
func (p *Peer) InputBuffered() int {
	return p.reader.Buffered()
}
