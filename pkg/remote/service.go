// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package remote

import (
	"context"

	"google.golang.org/grpc"
)

// Server is the secure key service as seen from the wire. The service
// itself lives outside this module; the interface exists so transports and
// test doubles agree on one descriptor.
type Server interface {
	GenerateGlobalKey(context.Context, *SlotRequest) (*CodeReply, error)
	RemoveAllAuthKeys(context.Context, *SlotRequest) (*CodeReply, error)
	HasGlobalKey(context.Context, *SlotRequest) (*BoolReply, error)
	ExportGlobalKey(context.Context, *SlotRequest) (*ExportReply, error)
	GenerateAuthKey(context.Context, *AuthKeyRequest) (*CodeReply, error)
	RemoveAuthKey(context.Context, *AuthKeyRequest) (*CodeReply, error)
	HasAuthKey(context.Context, *AuthKeyRequest) (*BoolReply, error)
	ExportAuthKey(context.Context, *AuthKeyRequest) (*ExportReply, error)
	InitSign(context.Context, *InitSignRequest) (*SessionReply, error)
	FinishSign(context.Context, *FinishSignRequest) (*SignReply, error)
	GetVersion(context.Context, *VersionRequest) (*VersionReply, error)
}

// RegisterServer registers srv with a gRPC server. The server must be
// created with the codec from pkg/codec forced, since the messages are not
// protobuf.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc is the gRPC descriptor of the secure key service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateGlobalKey", Handler: unaryHandler(MethodGenerateGlobalKey, Server.GenerateGlobalKey)},
		{MethodName: "RemoveAllAuthKeys", Handler: unaryHandler(MethodRemoveAllAuthKeys, Server.RemoveAllAuthKeys)},
		{MethodName: "HasGlobalKey", Handler: unaryHandler(MethodHasGlobalKey, Server.HasGlobalKey)},
		{MethodName: "ExportGlobalKey", Handler: unaryHandler(MethodExportGlobalKey, Server.ExportGlobalKey)},
		{MethodName: "GenerateAuthKey", Handler: unaryHandler(MethodGenerateAuthKey, Server.GenerateAuthKey)},
		{MethodName: "RemoveAuthKey", Handler: unaryHandler(MethodRemoveAuthKey, Server.RemoveAuthKey)},
		{MethodName: "HasAuthKey", Handler: unaryHandler(MethodHasAuthKey, Server.HasAuthKey)},
		{MethodName: "ExportAuthKey", Handler: unaryHandler(MethodExportAuthKey, Server.ExportAuthKey)},
		{MethodName: "InitSign", Handler: unaryHandler(MethodInitSign, Server.InitSign)},
		{MethodName: "FinishSign", Handler: unaryHandler(MethodFinishSign, Server.FinishSign)},
		{MethodName: "GetVersion", Handler: unaryHandler(MethodGetVersion, Server.GetVersion)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "securekey/v1/service.cbor",
}

// unaryHandler builds the method handler gRPC expects from a typed Server
// method expression.
func unaryHandler[Req, Rep any](
	fullMethod string,
	call func(Server, context.Context, *Req) (*Rep, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(Server), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
