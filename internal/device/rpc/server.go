// Package rpc wraps internal/device.Device behind the PenumbraService gRPC
// contract defined in api/penumbra/v1/penumbra.proto, the way the teacher's
// internal/driver/device.HasherServer wraps its own Device. The generated
// penumbrapb package this file imports is produced by protoc/buf from that
// .proto at build time and, like the teacher's own internal/proto/hasher/v1
// package, is not checked into this tree.
package rpc

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tommynok/penumbra/internal/device"
	"github.com/tommynok/penumbra/internal/device/rpc/penumbrapb"
	"github.com/tommynok/penumbra/internal/model"
)

// Server implements penumbrapb.PenumbraServiceServer over a single Device.
// One Server serialises every RPC onto the Device it wraps; the Device's own
// mutex (spec.md §5) is what actually enforces exclusivity, this type only
// translates wire requests into façade calls.
type Server struct {
	penumbrapb.UnimplementedPenumbraServiceServer

	dev *device.Device
}

// NewServer wraps an already-constructed Device. Construction (port probing,
// DA file selection, exploit hooks) happens the same way for an in-process
// caller and for this server, so it is left to the caller rather than
// duplicated here.
func NewServer(dev *device.Device) *Server {
	return &Server{dev: dev}
}

func (s *Server) Init(ctx context.Context, req *penumbrapb.InitRequest) (*penumbrapb.InitResponse, error) {
	if err := s.dev.Init(uint16(req.GetHwCode())); err != nil {
		return nil, status.Errorf(codes.Internal, "init: %v", err)
	}
	return &penumbrapb.InitResponse{BootState: "ready"}, nil
}

func (s *Server) EnterDAMode(ctx context.Context, req *penumbrapb.EnterDAModeRequest) (*penumbrapb.EnterDAModeResponse, error) {
	if err := s.dev.EnterDAMode(req.GetUseXml()); err != nil {
		return nil, status.Errorf(codes.Internal, "enter_da_mode: %v", err)
	}
	return &penumbrapb.EnterDAModeResponse{}, nil
}

// Upload streams the named partition back to the caller in chunks of at
// most 0x8000 bytes, mirroring the teacher's StreamCompute send loop.
func (s *Server) Upload(req *penumbrapb.UploadRequest, stream penumbrapb.PenumbraService_UploadServer) error {
	pr, pw := io.Pipe()
	var bytesTotal atomic.Uint64

	done := make(chan error, 1)
	go func() {
		defer pw.Close()
		done <- s.dev.Upload(req.GetPartition(), pw, func(_, total uint64) {
			bytesTotal.Store(total)
		})
	}()

	buf := make([]byte, 0x8000)
	for {
		n, readErr := pr.Read(buf)
		if n > 0 {
			chunk := &penumbrapb.UploadChunk{
				Data:       append([]byte(nil), buf[:n]...),
				BytesTotal: bytesTotal.Load(),
			}
			if err := stream.Send(chunk); err != nil {
				return status.Errorf(codes.Internal, "send: %v", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return status.Errorf(codes.Internal, "upload: %v", readErr)
		}
	}
	if err := <-done; err != nil {
		return status.Errorf(codes.Internal, "upload: %v", err)
	}
	return nil
}

// Download receives a client-streamed partition write, consuming the first
// message's partition/size header and every subsequent message's data.
func (s *Server) Download(stream penumbrapb.PenumbraService_DownloadServer) error {
	first, err := stream.Recv()
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "download: empty stream: %v", err)
	}
	partition := first.GetPartition()
	size := first.GetSize()

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.dev.Download(partition, size, pr, nil)
	}()

	if len(first.GetData()) > 0 {
		if _, err := pw.Write(first.GetData()); err != nil {
			pw.CloseWithError(err)
			<-done
			return status.Errorf(codes.Internal, "download: %v", err)
		}
	}
	for {
		msg, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			pw.CloseWithError(recvErr)
			<-done
			return status.Errorf(codes.Internal, "download: %v", recvErr)
		}
		if _, err := pw.Write(msg.GetData()); err != nil {
			pw.CloseWithError(err)
			<-done
			return status.Errorf(codes.Internal, "download: %v", err)
		}
	}
	pw.Close()
	if err := <-done; err != nil {
		return status.Errorf(codes.Internal, "download: %v", err)
	}
	return stream.SendAndClose(&penumbrapb.DownloadResponse{BytesWritten: size})
}

func (s *Server) Format(ctx context.Context, req *penumbrapb.FormatRequest) (*penumbrapb.FormatResponse, error) {
	if err := s.dev.Format(req.GetPartition(), nil); err != nil {
		return nil, status.Errorf(codes.Internal, "format: %v", err)
	}
	return &penumbrapb.FormatResponse{}, nil
}

func (s *Server) ErasePartition(ctx context.Context, req *penumbrapb.ErasePartitionRequest) (*penumbrapb.ErasePartitionResponse, error) {
	if err := s.dev.ErasePartition(req.GetPartition(), nil); err != nil {
		return nil, status.Errorf(codes.Internal, "erase_partition: %v", err)
	}
	return &penumbrapb.ErasePartitionResponse{}, nil
}

func (s *Server) GetPartitions(ctx context.Context, req *penumbrapb.GetPartitionsRequest) (*penumbrapb.GetPartitionsResponse, error) {
	parts, err := s.dev.GetPartitions()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get_partitions: %v", err)
	}
	out := make([]*penumbrapb.Partition, 0, len(parts))
	for _, p := range parts {
		out = append(out, &penumbrapb.Partition{
			Name:    p.Name,
			Address: p.Address,
			Size:    p.Size,
			Kind:    p.Kind.String(),
		})
	}
	return &penumbrapb.GetPartitionsResponse{Partitions: out}, nil
}

func (s *Server) SetSeccfgLockState(ctx context.Context, req *penumbrapb.SetSeccfgLockStateRequest) (*penumbrapb.SetSeccfgLockStateResponse, error) {
	out, err := s.dev.SetSeccfgLockState(model.LockFlag(req.GetLockFlag()))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "set_seccfg_lock_state: %v", err)
	}
	return &penumbrapb.SetSeccfgLockStateResponse{Header: bytes.Clone(out)}, nil
}

func (s *Server) Cancel(ctx context.Context, req *penumbrapb.CancelRequest) (*penumbrapb.CancelResponse, error) {
	s.dev.CancelAllOperations()
	return &penumbrapb.CancelResponse{}, nil
}

var _ penumbrapb.PenumbraServiceServer = (*Server)(nil)
