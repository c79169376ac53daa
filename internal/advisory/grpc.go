package advisory

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/roach88/nudge/internal/engine"
)

const (
	serviceName            = "nudge.advisory.v1.Advisory"
	methodName             = "RequestNudge"
	fullMethodRequestNudge = "/" + serviceName + "/" + methodName
)

// Client calls the advisory service over gRPC.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// NewClient connects to the advisory gRPC server at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection.
// Used for testing without owning the connection.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// RequestNudge implements Service.
func (c *Client) RequestNudge(ctx context.Context, st engine.State, trigger Trigger) (Advice, error) {
	in, err := encodeRequest(RequestFromState(st, trigger))
	if err != nil {
		return Advice{}, fmt.Errorf("advisory: encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethodRequestNudge, in, out); err != nil {
		return Advice{}, fmt.Errorf("advisory: %s: %w", methodName, err)
	}
	return decodeAdvice(out), nil
}

// Handler answers advisory requests on the server side.
type Handler func(ctx context.Context, req Request) (Advice, error)

// structServer is the service interface checked by grpc.RegisterService.
type structServer interface {
	RequestNudge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type server struct {
	h Handler
}

func (s *server) RequestNudge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	adv, err := s.h(ctx, req)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"title":   adv.Title,
		"message": adv.Message,
	})
}

func requestNudgeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(structServer).RequestNudge(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethodRequestNudge}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(structServer).RequestNudge(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*structServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodName, Handler: requestNudgeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// Register installs h as the advisory service on s.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&serviceDesc, &server{h: h})
}

func encodeRequest(r Request) (*structpb.Struct, error) {
	rels := make([]any, len(r.Relationships))
	for i, name := range r.Relationships {
		rels[i] = name
	}
	return structpb.NewStruct(map[string]any{
		"subjectId":      r.SubjectID,
		"trigger":        string(r.Trigger),
		"now":            r.Now.UTC().Format(time.RFC3339),
		"today":          r.Today,
		"emotionalState": r.EmotionalState,
		"dailyIntention": r.DailyIntention,
		"relationships":  rels,
		"currentPeriod":  r.CurrentPeriod,
	})
}

func decodeRequest(in *structpb.Struct) (Request, error) {
	f := in.GetFields()
	req := Request{
		SubjectID:      f["subjectId"].GetStringValue(),
		Trigger:        Trigger(f["trigger"].GetStringValue()),
		Today:          f["today"].GetStringValue(),
		EmotionalState: f["emotionalState"].GetStringValue(),
		DailyIntention: f["dailyIntention"].GetStringValue(),
		CurrentPeriod:  f["currentPeriod"].GetStringValue(),
	}
	if s := f["now"].GetStringValue(); s != "" {
		now, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Request{}, fmt.Errorf("advisory: bad now %q: %w", s, err)
		}
		req.Now = now
	}
	for _, v := range f["relationships"].GetListValue().GetValues() {
		req.Relationships = append(req.Relationships, v.GetStringValue())
	}
	return req, nil
}

func decodeAdvice(out *structpb.Struct) Advice {
	f := out.GetFields()
	return Advice{
		Title:   f["title"].GetStringValue(),
		Message: f["message"].GetStringValue(),
	}
}
