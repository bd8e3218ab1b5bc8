package transport

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls an AgentService over Connect.
type Client struct {
	chat     *connect.Client[ChatRequest, ChatUpdate]
	reset    *connect.Client[ResetRequest, ResetResponse]
	export   *connect.Client[ExportRequest, ExportResponse]
	loadData *connect.Client[LoadDataRequest, LoadDataResponse]
	execute  *connect.Client[ExecuteRequest, ExecuteResponse]
	describe *connect.Client[DescribeRequest, structpb.Struct]
}

// NewClient creates a Client for the server at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &Client{
		chat:     connect.NewClient[ChatRequest, ChatUpdate](httpClient, baseURL+ChatProcedure, opts...),
		reset:    connect.NewClient[ResetRequest, ResetResponse](httpClient, baseURL+ResetProcedure, opts...),
		export:   connect.NewClient[ExportRequest, ExportResponse](httpClient, baseURL+ExportProcedure, opts...),
		loadData: connect.NewClient[LoadDataRequest, LoadDataResponse](httpClient, baseURL+LoadDataProcedure, opts...),
		execute:  connect.NewClient[ExecuteRequest, ExecuteResponse](httpClient, baseURL+ExecuteProcedure, opts...),
		describe: connect.NewClient[DescribeRequest, structpb.Struct](httpClient, baseURL+DescribeProcedure, opts...),
	}
}

// Chat runs a turn on the server, calling fn for every update. It returns
// the session id the turn ran in.
func (c *Client) Chat(ctx context.Context, req *ChatRequest, fn func(*ChatUpdate)) (string, error) {
	stream, err := c.chat.CallServerStream(ctx, connect.NewRequest(req))
	if err != nil {
		return "", err
	}
	defer stream.Close()

	id := req.SessionID
	for stream.Receive() {
		u := stream.Msg()
		if u.SessionID != "" {
			id = u.SessionID
		}
		if fn != nil {
			fn(u)
		}
	}
	return id, stream.Err()
}

func (c *Client) Reset(ctx context.Context, sessionID string) error {
	_, err := c.reset.CallUnary(ctx, connect.NewRequest(&ResetRequest{SessionID: sessionID}))
	return err
}

func (c *Client) Export(ctx context.Context, sessionID string) (*ExportResponse, error) {
	res, err := c.export.CallUnary(ctx, connect.NewRequest(&ExportRequest{SessionID: sessionID}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) LoadData(ctx context.Context, req *LoadDataRequest) (*LoadDataResponse, error) {
	res, err := c.loadData.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Execute(ctx context.Context, sessionID, code string) (*ExecuteResponse, error) {
	res, err := c.execute.CallUnary(ctx, connect.NewRequest(&ExecuteRequest{SessionID: sessionID, Code: code}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Describe(ctx context.Context, sessionID string) (*structpb.Struct, error) {
	res, err := c.describe.CallUnary(ctx, connect.NewRequest(&DescribeRequest{SessionID: sessionID}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
