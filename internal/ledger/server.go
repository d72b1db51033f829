// ABOUTME: Server-side registration for the study registry service
// ABOUTME: Hand-built ServiceDesc decoding Struct requests into typed calls

package ledger

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// StudyRegistryServer is implemented by registry backends and test fakes.
type StudyRegistryServer interface {
	CreateStudy(ctx context.Context, name, description string) (*Receipt, error)
	GetStudy(ctx context.Context, id uint64) (*Study, error)
	GetStudyStats(ctx context.Context, id uint64) (*StudyStats, error)
	StudyCounter(ctx context.Context) (uint64, error)
	SubmitData(ctx context.Context, sub *Submission) (*Receipt, error)
}

// RegisterStudyRegistryServer registers srv on a gRPC server.
func RegisterStudyRegistryServer(s grpc.ServiceRegistrar, srv StudyRegistryServer) {
	s.RegisterService(&serviceDesc, srv)
}

type structHandler func(srv StudyRegistryServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, h structHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				out, err := h(srv.(StudyRegistryServer), ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, toStatus(err)
				}
				return out, nil
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, call)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StudyRegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodStudyCounter, handleStudyCounter),
		unaryMethod(MethodGetStudy, handleGetStudy),
		unaryMethod(MethodGetStudyStats, handleGetStudyStats),
		unaryMethod(MethodSubmitData, handleSubmitData),
		unaryMethod(MethodCreateStudy, handleCreateStudy),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "healthledger/v1/registry.proto",
}

func handleStudyCounter(srv StudyRegistryServer, ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	count, err := srv.StudyCounter(ctx)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{fieldCount: uintValue(count)}}, nil
}

func handleGetStudy(srv StudyRegistryServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := getUint(req, fieldStudyID)
	if err != nil {
		return nil, badRequest(err)
	}
	st, err := srv.GetStudy(ctx, id)
	if err != nil {
		return nil, err
	}
	return encodeStudy(st), nil
}

func handleGetStudyStats(srv StudyRegistryServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := getUint(req, fieldStudyID)
	if err != nil {
		return nil, badRequest(err)
	}
	st, err := srv.GetStudyStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return encodeStats(st), nil
}

func handleSubmitData(srv StudyRegistryServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sub, err := decodeSubmission(req)
	if err != nil {
		return nil, badRequest(err)
	}
	receipt, err := srv.SubmitData(ctx, sub)
	if err != nil {
		return nil, err
	}
	return encodeReceipt(receipt), nil
}

func handleCreateStudy(srv StudyRegistryServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := getString(req, fieldStudyName)
	if err != nil {
		return nil, badRequest(err)
	}
	description, err := getString(req, fieldDescription)
	if err != nil {
		return nil, badRequest(err)
	}
	receipt, err := srv.CreateStudy(ctx, name, description)
	if err != nil {
		return nil, err
	}
	return encodeReceipt(receipt), nil
}
