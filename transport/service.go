// Package transport exposes a kernel.Registry over the network: a Connect
// service carrying JSON messages, a WebSocket chat endpoint and a few plain
// HTTP routes, all mounted on one httprouter.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/autods/agent"
	"github.com/tailored-agentic-units/autods/dataset"
	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
)

// EventRequest is emitted for every handled RPC.
const EventRequest observability.EventType = "transport.request"

// Service implements autods.v1.AgentService on top of a session registry.
type Service struct {
	registry *kernel.Registry
	observer observability.Observer
}

// NewService creates a Service for registry.
func NewService(registry *kernel.Registry, observer observability.Observer) *Service {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Service{registry: registry, observer: observer}
}

// Handlers returns the Connect handlers keyed by procedure path.
func (s *Service) Handlers(opts ...connect.HandlerOption) map[string]http.Handler {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	return map[string]http.Handler{
		ChatProcedure:     connect.NewServerStreamHandler(ChatProcedure, s.Chat, opts...),
		ResetProcedure:    connect.NewUnaryHandler(ResetProcedure, s.Reset, opts...),
		ExportProcedure:   connect.NewUnaryHandler(ExportProcedure, s.Export, opts...),
		LoadDataProcedure: connect.NewUnaryHandler(LoadDataProcedure, s.LoadData, opts...),
		ExecuteProcedure:  connect.NewUnaryHandler(ExecuteProcedure, s.Execute, opts...),
		DescribeProcedure: connect.NewUnaryHandler(DescribeProcedure, s.Describe, opts...),
	}
}

// Chat runs one turn and streams its updates. Turn outcomes, including a
// failed model call, travel as updates; only failures to run the turn at
// all end the stream with an error.
func (s *Service) Chat(ctx context.Context, req *connect.Request[ChatRequest], stream *connect.ServerStream[ChatUpdate]) error {
	msg := req.Msg
	if strings.TrimSpace(msg.Prompt) == "" {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("prompt is required"))
	}

	id, err := s.session(ctx, msg.SessionID)
	if err != nil {
		return toConnectError(err)
	}
	s.record(ctx, ChatProcedure, id)

	var sendErr error
	send := func(u kernel.Update) {
		if sendErr != nil {
			return
		}
		sendErr = stream.Send(&ChatUpdate{SessionID: id, Update: u})
	}

	var opts []kernel.TurnOption
	if msg.Agent != "" {
		opts = append(opts, kernel.UsingAgent(msg.Agent))
	}

	_, err = s.registry.Chat(ctx, id, msg.Prompt, send, opts...)
	if sendErr != nil {
		return sendErr
	}
	if err != nil && !isTurnOutcome(err) {
		return toConnectError(err)
	}
	return nil
}

// isTurnOutcome reports whether err ended a turn that already published it
// to the client as a notice or error update.
func isTurnOutcome(err error) bool {
	var mce *kernel.ModelCallError
	return errors.As(err, &mce) ||
		errors.Is(err, kernel.ErrMaxRetries) ||
		errors.Is(err, kernel.ErrMaxIterations)
}

func (s *Service) Reset(ctx context.Context, req *connect.Request[ResetRequest]) (*connect.Response[ResetResponse], error) {
	s.record(ctx, ResetProcedure, req.Msg.SessionID)
	if err := s.registry.Reset(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ResetResponse{}), nil
}

func (s *Service) Export(ctx context.Context, req *connect.Request[ExportRequest]) (*connect.Response[ExportResponse], error) {
	s.record(ctx, ExportProcedure, req.Msg.SessionID)
	msgs, err := s.registry.Export(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExportResponse{SessionID: req.Msg.SessionID, Messages: msgs}), nil
}

// LoadData reads a table from uploaded file content or a read-only SQL
// query and binds it as df.
func (s *Service) LoadData(ctx context.Context, req *connect.Request[LoadDataRequest]) (*connect.Response[LoadDataResponse], error) {
	ds, err := s.load(ctx, req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	id, err := s.session(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	s.record(ctx, LoadDataProcedure, id)

	if err := s.registry.Bind(ctx, id, sandbox.DatasetVariable, ds); err != nil {
		return nil, toConnectError(err)
	}

	rows, cols := ds.Frame.Dims()
	return connect.NewResponse(&LoadDataResponse{
		SessionID: id,
		Variable:  sandbox.DatasetVariable,
		Profile:   dataset.Summarize(ds),
		Message:   fmt.Sprintf("Loaded %s into `%s`: %d rows, %d columns.", ds.Name, sandbox.DatasetVariable, rows, cols),
	}), nil
}

func (s *Service) load(ctx context.Context, msg *LoadDataRequest) (*sandbox.Dataset, error) {
	switch {
	case msg.Query != "":
		if msg.Database == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("database is required with query"))
		}
		db, err := dataset.Open(msg.Database)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return dataset.Query(ctx, db, msg.Query)

	case msg.Content != "":
		format := msg.Format
		if format == "" {
			format = dataset.FormatOf(msg.Name)
		}
		name := msg.Name
		if name == "" {
			name = "upload." + format
		}
		return dataset.Read(name, format, strings.NewReader(msg.Content))
	}
	return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("content or query is required"))
}

func (s *Service) Execute(ctx context.Context, req *connect.Request[ExecuteRequest]) (*connect.Response[ExecuteResponse], error) {
	id, err := s.session(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	s.record(ctx, ExecuteProcedure, id)

	res, err := s.registry.Execute(ctx, id, req.Msg.Code)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExecuteResponse{
		SessionID:   id,
		Result:      res,
		Observation: kernel.Observation(res),
	}), nil
}

// Describe reports on one session, or on the registry when no session id
// is given.
func (s *Service) Describe(ctx context.Context, req *connect.Request[DescribeRequest]) (*connect.Response[structpb.Struct], error) {
	s.record(ctx, DescribeProcedure, req.Msg.SessionID)

	ids := s.registry.IDs()
	sessions := make([]any, len(ids))
	for i, id := range ids {
		sessions[i] = id
	}
	agents := make([]any, 0)
	for _, info := range s.registry.Agents() {
		protocols := make([]any, len(info.Protocols))
		for i, p := range info.Protocols {
			protocols[i] = string(p)
		}
		agents = append(agents, map[string]any{
			"name":      info.Name,
			"provider":  info.Provider,
			"model":     info.Model,
			"protocols": protocols,
		})
	}
	fields := map[string]any{"sessions": sessions, "agents": agents}

	if id := req.Msg.SessionID; id != "" {
		k, err := s.registry.Get(ctx, id)
		if err != nil {
			return nil, toConnectError(err)
		}
		fields["session_id"] = id
		fields["state"] = k.State().String()
		fields["messages"] = len(k.Messages())

		state, err := s.registry.DataState(ctx, id)
		if err != nil {
			return nil, toConnectError(err)
		}
		if state != nil {
			columns := make([]any, len(state.Columns))
			for i, c := range state.Columns {
				columns[i] = c
			}
			fields["data"] = map[string]any{
				"variable": state.Variable,
				"source":   state.Source,
				"rows":     state.Rows,
				"cols":     state.Cols,
				"columns":  columns,
				"summary":  state.String(),
			}
		}
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// session returns id, opening a new session when id is empty.
func (s *Service) session(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	k, err := s.registry.Open(ctx, "")
	if err != nil {
		return "", err
	}
	return k.ID(), nil
}

func (s *Service) record(ctx context.Context, procedure, id string) {
	observability.Emit(ctx, s.observer, EventRequest, observability.LevelVerbose, "transport.Service", map[string]any{
		"procedure": procedure,
		"session":   id,
	})
}

func toConnectError(err error) error {
	var ce *connect.Error
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, kernel.ErrSessionNotFound),
		errors.Is(err, agent.ErrAgentNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, kernel.ErrRegistryClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, sandbox.ErrEnvironmentInit):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, dataset.ErrUnsupportedFormat),
		errors.Is(err, dataset.ErrUnsupportedDriver),
		errors.Is(err, dataset.ErrEmpty),
		errors.Is(err, dataset.ErrReadOnly),
		errors.Is(err, sandbox.ErrUnsupportedValue),
		errors.Is(err, agent.ErrProtocolUnsupported):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
