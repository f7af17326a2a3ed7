package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nirv/nirv/internal/connector"
	"github.com/nirv/nirv/internal/connector/mock"
	"github.com/nirv/nirv/internal/engine"
	"github.com/nirv/nirv/pkg/types"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	return newClientFor(t, mock.New(mock.WithConnectDelay(0)))
}

func newClientFor(t *testing.T, c *mock.Connector) *Client {
	t.Helper()

	eng := engine.New(nil)
	t.Cleanup(func() { eng.Shutdown(context.Background()) })
	require.NoError(t, eng.RegisterConnector(context.Background(), "mock", c, connector.NewInitConfig()))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterQueryServiceServer(srv, NewQueryServer(eng))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func TestQuery(t *testing.T) {
	client := newClient(t)

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "rpc-1")
	resp, err := client.Query(ctx, "SELECT * FROM source('mock.users') ORDER BY name DESC LIMIT 2", grpc.Header(&header))
	require.NoError(t, err)

	body := resp.AsMap()
	assert.Equal(t, float64(2), body["row_count"])
	assert.Equal(t, "rpc-1", body["request_id"])
	assert.Equal(t, []string{"rpc-1"}, header.Get("x-request-id"))

	rows := body["rows"].([]interface{})
	require.Len(t, rows, 2)
	assert.Equal(t, "Charlie Brown", rows[0].([]interface{})[1])
	assert.Equal(t, "Bob Smith", rows[1].([]interface{})[1])

	cols := body["columns"].([]interface{})
	assert.Equal(t, "id", cols[0].(map[string]interface{})["name"])
}

func TestQuery_LargeIntegers(t *testing.T) {
	c := mock.New(mock.WithConnectDelay(0))
	c.AddTable("ledger", []string{"id", "amount"}, []types.Row{
		{types.IntegerValue(1), types.IntegerValue(9007199254740993)},
		{types.IntegerValue(2), types.IntegerValue(-9007199254740993)},
		{types.IntegerValue(3), types.IntegerValue(9007199254740992)},
	})
	client := newClientFor(t, c)

	resp, err := client.Query(context.Background(), "SELECT id, amount FROM source('mock.ledger')")
	require.NoError(t, err)

	rows := resp.AsMap()["rows"].([]interface{})
	require.Len(t, rows, 3)
	assert.Equal(t, float64(1), rows[0].([]interface{})[0])
	assert.Equal(t, "9007199254740993", rows[0].([]interface{})[1])
	assert.Equal(t, "-9007199254740993", rows[1].([]interface{})[1])
	assert.Equal(t, float64(9007199254740992), rows[2].([]interface{})[1])
}

func TestQuery_Errors(t *testing.T) {
	client := newClient(t)

	tests := []struct {
		name string
		sql  string
		code codes.Code
	}{
		{"empty", "", codes.InvalidArgument},
		{"syntax", "SELEC", codes.InvalidArgument},
		{"unregistered", "SELECT * FROM source('nope.t')", codes.NotFound},
		{"two sources", "SELECT * FROM source('mock.users'), source('mock.products')", codes.Unimplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Query(context.Background(), tt.sql)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestListSources(t *testing.T) {
	client := newClient(t)

	resp, err := client.ListSources(context.Background())
	require.NoError(t, err)

	sources := resp.AsMap()["sources"].([]interface{})
	require.Len(t, sources, 1)
	src := sources[0].(map[string]interface{})
	assert.Equal(t, "mock", src["object_type"])
	assert.Equal(t, true, src["connected"])
}

func TestGetSchema(t *testing.T) {
	client := newClient(t)

	resp, err := client.GetSchema(context.Background(), "mock.products")
	require.NoError(t, err)
	assert.Equal(t, "products", resp.AsMap()["name"])

	_, err = client.GetSchema(context.Background(), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetSchema(context.Background(), "mock.ghosts")
	assert.Equal(t, codes.Internal, status.Code(err))
}
