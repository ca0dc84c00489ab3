// Package client implements the archive's client side: one TCP connection
// per request/response exchange.
package client

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jkatz326/ngram/internal/wire"
)

const defaultTimeout = 30 * time.Second

// Client sends single-exchange requests to an archive server.
type Client struct {
	addr    string
	timeout time.Duration
}

// New creates a Client for the given host:port address.
func New(addr string) *Client {
	return &Client{addr: addr, timeout: defaultTimeout}
}

// Publish sends the document text and returns the assigned id.
func (c *Client) Publish(text string) (uint64, error) {
	resp, err := c.roundTrip(wire.Publish{Text: text})
	if err != nil {
		return 0, err
	}
	success, ok := resp.(wire.PublishSuccess)
	if !ok {
		return 0, fmt.Errorf("publish rejected by server")
	}
	return success.ID, nil
}

// PublishFile reads a document from the local filesystem and publishes it.
// Read failures surface here, before any bytes hit the wire.
func (c *Client) PublishFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading document %s: %w", path, err)
	}
	return c.Publish(string(data))
}

// Search returns the ids of documents containing word.
func (c *Client) Search(word string) ([]uint64, error) {
	resp, err := c.roundTrip(wire.Search{Word: word})
	if err != nil {
		return nil, err
	}
	success, ok := resp.(wire.SearchSuccess)
	if !ok {
		return nil, fmt.Errorf("search rejected by server")
	}
	return success.IDs, nil
}

// Retrieve returns the text of the document with the given id. A Failure
// response maps to an error naming the id.
func (c *Client) Retrieve(id uint64) (string, error) {
	resp, err := c.roundTrip(wire.Retrieve{ID: id})
	if err != nil {
		return "", err
	}
	success, ok := resp.(wire.RetrieveSuccess)
	if !ok {
		return "", fmt.Errorf("no document with id %d", id)
	}
	return success.Text, nil
}

// roundTrip dials, writes one request, reads one response, and closes the
// connection.
func (c *Client) roundTrip(req wire.Request) (wire.Response, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write(wire.EncodeRequest(req)); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	resp, err := wire.DecodeResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}
