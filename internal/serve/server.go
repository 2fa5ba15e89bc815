// Package serve exposes a loaded reference atlas over Arrow Flight: query
// expression matrices arrive via DoPut, per-cell label predictions leave
// via DoGet. One server instance owns one immutable reference; queries are
// kept until dropped so repeated mapping calls reuse the upload.
package serve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/integrate"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/metrics"
)

// Action names accepted by DoAction.
const (
	ActionDrop   = "drop"
	ActionStatus = "status"
)

// Config assembles a mapping server.
type Config struct {
	// Reference is the annotated atlas every query is mapped against.
	Reference *matrix.Dataset
	// Fields holds the transferable label fields, each in reference cell
	// order.
	Fields map[string][]string
	// Options drive anchor discovery and transfer for every request.
	Options integrate.Options
	Logger  *zap.Logger
	Mem     memory.Allocator
}

// MappingServer implements the Flight service over one reference atlas.
type MappingServer struct {
	flight.BaseFlightServer

	mem    memory.Allocator
	logger *zap.Logger
	opts   integrate.Options

	reference *matrix.Dataset
	fields    map[string][]string

	mu      sync.RWMutex
	queries map[string]*matrix.Dataset
}

// NewMappingServer validates the reference and its label fields.
func NewMappingServer(cfg Config) (*MappingServer, error) {
	if cfg.Reference == nil {
		return nil, qerr.NewValidationError("NewMappingServer", "reference", "reference dataset is required")
	}
	if len(cfg.Fields) == 0 {
		return nil, qerr.NewValidationError("NewMappingServer", "fields", "at least one label field is required")
	}
	for field, labels := range cfg.Fields {
		if len(labels) != cfg.Reference.NumCells() {
			return nil, qerr.NewValidationError("NewMappingServer", "fields",
				fmt.Sprintf("field %q has %d labels, reference has %d cells",
					field, len(labels), cfg.Reference.NumCells()))
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mem := cfg.Mem
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	opts := cfg.Options
	opts.Logger = logger

	return &MappingServer{
		mem:       mem,
		logger:    logger,
		opts:      opts,
		reference: cfg.Reference,
		fields:    cfg.Fields,
		queries:   make(map[string]*matrix.Dataset),
	}, nil
}

func observeFlight(method string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.FlightOperationsTotal.WithLabelValues(method, outcome).Inc()
	metrics.FlightDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// DoPut receives a query expression matrix. The flight descriptor path
// names the query; batches are appended in arrival order.
func (s *MappingServer) DoPut(stream flight.FlightService_DoPutServer) (err error) {
	start := time.Now()
	defer func() { observeFlight("do_put", start, err) }()

	r, err := flight.NewRecordReader(stream)
	if err != nil {
		s.logger.Error("DoPut failed to create reader", zap.Error(err))
		return status.Error(codes.InvalidArgument, err.Error())
	}
	defer r.Release()

	var name string
	if fd := r.LatestFlightDescriptor(); fd != nil && len(fd.Path) > 0 {
		name = fd.Path[0]
	} else {
		return status.Error(codes.InvalidArgument, "missing flight descriptor path")
	}

	var cells []string
	var values []float32
	var features []string

	for r.Next() {
		rec := r.Record()
		ds, err := matrix.FromRecord(rec)
		if err != nil {
			return toStatus(err)
		}
		if features == nil {
			features = ds.Features()
		} else if len(features) != ds.NumFeatures() {
			return status.Errorf(codes.InvalidArgument,
				"batch feature width %d does not match first batch %d", ds.NumFeatures(), len(features))
		}
		cells = append(cells, ds.Cells()...)
		for i := 0; i < ds.NumCells(); i++ {
			values = append(values, ds.Row(i)...)
		}
	}
	if err := r.Err(); err != nil {
		s.logger.Error("DoPut stream error", zap.Error(err))
		return err
	}
	if len(cells) == 0 {
		return status.Error(codes.InvalidArgument, "query carried no cells")
	}

	ds, err := matrix.NewDataset(name, cells, features, values, matrix.KindDense)
	if err != nil {
		return toStatus(err)
	}

	s.mu.Lock()
	s.queries[name] = ds
	s.mu.Unlock()

	s.logger.Info("query stored",
		zap.String("query", name),
		zap.Int("cells", ds.NumCells()),
		zap.Int("features", ds.NumFeatures()))
	return nil
}

// DoGet maps the named query against the reference and streams one record
// of per-cell predictions. The ticket is the query name.
func (s *MappingServer) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) (err error) {
	start := time.Now()
	defer func() { observeFlight("do_get", start, err) }()

	name := string(tkt.Ticket)
	s.mu.RLock()
	query, ok := s.queries[name]
	s.mu.RUnlock()
	if !ok {
		return status.Errorf(codes.NotFound, "query %q not found; upload it with DoPut first", name)
	}

	s.logger.Info("mapping query",
		zap.String("query", name),
		zap.Int("cells", query.NumCells()))

	res, err := integrate.MapQuery(stream.Context(), s.opts, s.reference, query, s.fields, nil)
	if err != nil {
		return toStatus(err)
	}

	rec, err := PredictionsToRecord(s.mem, query.Cells(), res.Labels)
	if err != nil {
		return toStatus(err)
	}
	defer rec.Release()

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	defer w.Close()
	if err := w.Write(rec); err != nil {
		return err
	}
	return nil
}

// ListFlights lists the stored queries.
func (s *MappingServer) ListFlights(_ *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name, ds := range s.queries {
		info := &flight.FlightInfo{
			FlightDescriptor: &flight.FlightDescriptor{
				Type: flight.DescriptorPATH,
				Path: []string{name},
			},
			TotalRecords: int64(ds.NumCells()),
			TotalBytes:   -1,
		}
		if err := stream.Send(info); err != nil {
			return err
		}
	}
	return nil
}

// GetFlightInfo describes one stored query.
func (s *MappingServer) GetFlightInfo(_ context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	if len(desc.Path) == 0 {
		return nil, status.Error(codes.InvalidArgument, "missing descriptor path")
	}
	name := desc.Path[0]

	s.mu.RLock()
	ds, ok := s.queries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "query %q not found", name)
	}
	return &flight.FlightInfo{
		FlightDescriptor: desc,
		TotalRecords:     int64(ds.NumCells()),
		TotalBytes:       -1,
		Endpoint: []*flight.FlightEndpoint{
			{Ticket: &flight.Ticket{Ticket: []byte(name)}},
		},
	}, nil
}

// DoAction handles "drop" (body: query name) and "status".
func (s *MappingServer) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) (err error) {
	start := time.Now()
	defer func() { observeFlight("do_action", start, err) }()

	switch action.Type {
	case ActionDrop:
		name := string(action.Body)
		s.mu.Lock()
		_, ok := s.queries[name]
		delete(s.queries, name)
		s.mu.Unlock()
		if !ok {
			return status.Errorf(codes.NotFound, "query %q not found", name)
		}
		s.logger.Info("query dropped", zap.String("query", name))
		return stream.Send(&flight.Result{Body: []byte("dropped")})

	case ActionStatus:
		s.mu.RLock()
		n := len(s.queries)
		s.mu.RUnlock()
		body := fmt.Sprintf(`{"reference":%q,"reference_cells":%d,"fields":%d,"queries":%d}`,
			s.reference.Name(), s.reference.NumCells(), len(s.fields), n)
		return stream.Send(&flight.Result{Body: []byte(body)})

	default:
		return status.Errorf(codes.InvalidArgument, "unknown action %q", action.Type)
	}
}

// toStatus maps pipeline error types onto gRPC codes.
func toStatus(err error) error {
	switch {
	case qerr.IsType(err, qerr.ErrorTypeValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case qerr.IsType(err, qerr.ErrorTypeData):
		return status.Error(codes.FailedPrecondition, err.Error())
	case qerr.IsType(err, qerr.ErrorTypeStorage):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
