// Package penumbrapb holds the generated client/server stubs for
// api/penumbra/v1/penumbra.proto. It is produced by protoc-gen-go and
// protoc-gen-go-grpc at build time and, like the teacher's own
// internal/proto/hasher/v1 package, is not checked into source control.
package penumbrapb

//go:generate protoc --go_out=. --go_opt=paths=source_relative \
//go:generate   --go-grpc_out=. --go-grpc_opt=paths=source_relative \
//go:generate   -I ../../../../api/penumbra/v1 ../../../../api/penumbra/v1/penumbra.proto
