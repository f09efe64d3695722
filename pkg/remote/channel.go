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

// Package remote defines the contract between this client and the secure
// key service: the method names, request and reply messages, the gRPC
// service descriptor, and the Proxy that issues one channel call per
// domain operation.
package remote

import "context"

// ServiceName is the fully qualified gRPC service name of the secure key
// service. It doubles as the service identity used for health probes.
const ServiceName = "securekey.v1.SecureKeyService"

// Full method names, in the form gRPC puts on the wire.
const (
	MethodGenerateGlobalKey = "/" + ServiceName + "/GenerateGlobalKey"
	MethodRemoveAllAuthKeys = "/" + ServiceName + "/RemoveAllAuthKeys"
	MethodHasGlobalKey      = "/" + ServiceName + "/HasGlobalKey"
	MethodExportGlobalKey   = "/" + ServiceName + "/ExportGlobalKey"
	MethodGenerateAuthKey   = "/" + ServiceName + "/GenerateAuthKey"
	MethodRemoveAuthKey     = "/" + ServiceName + "/RemoveAuthKey"
	MethodHasAuthKey        = "/" + ServiceName + "/HasAuthKey"
	MethodExportAuthKey     = "/" + ServiceName + "/ExportAuthKey"
	MethodInitSign          = "/" + ServiceName + "/InitSign"
	MethodFinishSign        = "/" + ServiceName + "/FinishSign"
	MethodGetVersion        = "/" + ServiceName + "/GetVersion"
)

// Channel is the capability to invoke a named remote operation. An error
// means the call itself failed (transport, codec, dead peer); application
// outcomes travel inside reply.
//
// *grpc.ClientConn satisfies this interface through transport.GRPCChannel.
type Channel interface {
	Invoke(ctx context.Context, method string, args, reply any) error
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, method string, args, reply any) error

// Invoke calls f.
func (f ChannelFunc) Invoke(ctx context.Context, method string, args, reply any) error {
	return f(ctx, method, args, reply)
}

// ShortMethod strips the service prefix from a full method name.
func ShortMethod(method string) string {
	for i := len(method) - 1; i >= 0; i-- {
		if method[i] == '/' {
			return method[i+1:]
		}
	}
	return method
}
