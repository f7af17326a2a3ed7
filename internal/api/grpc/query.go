package grpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nirv/nirv/internal/engine"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

// Engine is the part of the query engine the service exposes.
type Engine interface {
	Query(ctx context.Context, sql string) (*engine.Result, error)
	DescribeSources() []engine.SourceInfo
	Schema(ctx context.Context, source string) (*types.Schema, error)
}

// QueryServer implements nirv.v1.QueryService.
type QueryServer struct {
	engine Engine
	logger *slog.Logger
}

// Option configures a QueryServer.
type Option func(*QueryServer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *QueryServer) {
		s.logger = logger
	}
}

// NewQueryServer creates a server backed by eng.
func NewQueryServer(eng Engine, opts ...Option) *QueryServer {
	s := &QueryServer{
		engine: eng,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type queryResponse struct {
	QueryID         string                 `json:"query_id"`
	Columns         []types.ColumnMetadata `json:"columns"`
	Rows            [][]interface{}        `json:"rows"`
	RowCount        int                    `json:"row_count"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	RequestID       string                 `json:"request_id"`
}

// Query runs the request's "sql" field.
func (s *QueryServer) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	sql := req.GetFields()["sql"].GetStringValue()
	if sql == "" {
		return nil, status.Error(codes.InvalidArgument, "sql is required")
	}

	result, err := s.engine.Query(ctx, sql)
	if err != nil {
		return nil, s.statusError(requestID, err)
	}

	resp := queryResponse{
		QueryID:         result.QueryID,
		Columns:         result.Columns,
		Rows:            wireRows(result.Rows),
		RowCount:        result.RowCount(),
		ExecutionTimeMs: result.ExecutionTime.Milliseconds(),
		RequestID:       requestID,
	}
	if resp.Columns == nil {
		resp.Columns = []types.ColumnMetadata{}
	}
	return toStruct(resp)
}

// ListSources returns {"sources": [...]}.
func (s *QueryServer) ListSources(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]interface{}{"sources": s.engine.DescribeSources()})
}

// GetSchema describes the request's "source" field.
func (s *QueryServer) GetSchema(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source := req.GetFields()["source"].GetStringValue()
	if source == "" {
		return nil, status.Error(codes.InvalidArgument, "source is required")
	}
	schema, err := s.engine.Schema(ctx, source)
	if err != nil {
		return nil, s.statusError(extractRequestID(ctx), err)
	}
	return toStruct(schema)
}

// maxExactInteger is the largest magnitude a Struct number (a double)
// holds without rounding.
const maxExactInteger = 1 << 53

// wireRows prepares rows for a Struct. Integers beyond the exact double
// range are sent as decimal strings.
func wireRows(rows []types.Row) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			if v.Kind() == types.KindInteger && (v.Int() > maxExactInteger || v.Int() < -maxExactInteger) {
				cells[j] = strconv.FormatInt(v.Int(), 10)
				continue
			}
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}

// toStruct converts v through its JSON encoding so gRPC and HTTP bodies
// share one shape.
func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// statusError converts an engine error into a gRPC status carrying the
// category and code in its message.
func (s *QueryServer) statusError(requestID string, err error) error {
	code := codeFor(err)
	if code == codes.Internal || code == codes.Unavailable {
		s.logger.Error("rpc failed", "request_id", requestID, "error", err)
	}
	return status.Error(code, err.Error())
}

func codeFor(err error) codes.Code {
	switch nerrors.GetCategory(err) {
	case nerrors.ErrCategoryParse, nerrors.ErrCategoryPlanning:
		return codes.InvalidArgument

	case nerrors.ErrCategoryDispatch:
		switch nerrors.GetCode(err) {
		case nerrors.CodeUnregisteredObjectType:
			return codes.NotFound
		case nerrors.CodeCrossConnectorJoin:
			return codes.Unimplemented
		case nerrors.CodeRegistrationFailed:
			return codes.AlreadyExists
		}
		return codes.InvalidArgument

	case nerrors.ErrCategoryExecution:
		if nerrors.GetCode(err) == nerrors.CodeConnectorNotFound {
			return codes.NotFound
		}
		return codes.InvalidArgument

	case nerrors.ErrCategoryConnector:
		switch nerrors.GetCode(err) {
		case nerrors.CodeTimeout:
			return codes.DeadlineExceeded
		case nerrors.CodeConnectionFailed:
			return codes.Unavailable
		case nerrors.CodeAuthenticationFailed:
			return codes.PermissionDenied
		case nerrors.CodeUnsupportedOperation:
			return codes.Unimplemented
		}
		return codes.Internal

	default:
		return codes.Internal
	}
}

// extractRequestID extracts or generates a request ID from the gRPC context
// and echoes it in the response header.
func extractRequestID(ctx context.Context) string {
	requestID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			requestID = ids[0]
		}
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}
	grpc.SetHeader(ctx, metadata.Pairs("x-request-id", requestID))
	return requestID
}
