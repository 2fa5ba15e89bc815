// Package client is the Go client for a quiverd mapping daemon: it uploads
// query expression matrices over Arrow Flight and fetches per-cell label
// predictions.
package client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/serve"
	"github.com/23skdu/quiver/internal/transfer"
)

// Client wraps a Flight connection to one quiverd instance.
type Client struct {
	fc      flight.Client
	mem     memory.Allocator
	timeout time.Duration
}

// New dials addr without TLS. Message limits are sized for expression
// matrices with tens of thousands of cells per batch.
func New(addr string) (*Client, error) {
	fc, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(1024*1024*100),
			grpc.MaxCallSendMsgSize(1024*1024*100),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{
		fc:      fc,
		mem:     memory.NewGoAllocator(),
		timeout: 30 * time.Second,
	}, nil
}

// Close tears down the connection.
func (c *Client) Close() error { return c.fc.Close() }

// PutQuery uploads a query dataset under its own name.
func (c *Client) PutQuery(ctx context.Context, ds *matrix.Dataset) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.fc.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	rec := matrix.ToRecord(c.mem, ds)
	defer rec.Release()

	wr := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	wr.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{ds.Name()},
	})
	if err := wr.Write(rec); err != nil {
		return fmt.Errorf("failed to write query record: %w", err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}

	// Drain acknowledgments; the server stores the query on stream end.
	for {
		if _, err := stream.Recv(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Predictions holds the per-cell mapping output for one query.
type Predictions struct {
	Cells  []string
	Fields map[string]*transfer.LabelResult
}

// Map requests label transfer for a previously uploaded query.
func (c *Client) Map(ctx context.Context, query string) (*Predictions, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.fc.DoGet(ctx, &flight.Ticket{Ticket: []byte(query)})
	if err != nil {
		return nil, err
	}
	r, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create record reader: %w", err)
	}
	defer r.Release()

	out := &Predictions{Fields: make(map[string]*transfer.LabelResult)}
	for r.Next() {
		rec := r.Record()
		cells, fields, err := serve.PredictionsFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out.Cells = append(out.Cells, cells...)
		for name, res := range fields {
			if existing, ok := out.Fields[name]; ok {
				existing.Labels = append(existing.Labels, res.Labels...)
				existing.Scores = append(existing.Scores, res.Scores...)
			} else {
				out.Fields[name] = res
			}
		}
	}
	if err := r.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// Drop removes a stored query from the daemon.
func (c *Client) Drop(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.fc.DoAction(ctx, &flight.Action{
		Type: serve.ActionDrop,
		Body: []byte(query),
	})
	if err != nil {
		return err
	}
	for {
		if _, err := stream.Recv(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Status fetches the daemon's JSON status document.
func (c *Client) Status(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.fc.DoAction(ctx, &flight.Action{Type: serve.ActionStatus})
	if err != nil {
		return "", err
	}
	var body string
	for {
		res, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return body, nil
			}
			return "", err
		}
		body = string(res.Body)
	}
}
