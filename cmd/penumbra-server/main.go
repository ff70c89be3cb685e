// Command penumbra-server exposes the Device façade over gRPC, mirroring
// the teacher's cmd/driver/hasher-server in shape: flag-parsed listen
// port, graceful shutdown on SIGINT/SIGTERM, and reflection enabled for
// debugging.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/tommynok/penumbra/internal/da"
	"github.com/tommynok/penumbra/internal/device"
	"github.com/tommynok/penumbra/internal/device/rpc"
	"github.com/tommynok/penumbra/internal/device/rpc/penumbrapb"
	"github.com/tommynok/penumbra/internal/transport"
)

var (
	listenPort = flag.Int("port", 8901, "gRPC server port")
	daFilePath = flag.String("da-file", "", "path to the DA binary to parse (required)")
	serialPath = flag.String("serial", "", "serial device path; if empty, USB discovery is used")
	baudRate   = flag.Int("baud", 921600, "baud rate for the serial backend")
)

func openPort() (*transport.Port, error) {
	if *serialPath != "" {
		return &transport.Port{
			Mode:    transport.Da,
			Backend: transport.NewSerialBackend(*serialPath, *baudRate),
		}, nil
	}

	descriptor, mode, found, err := transport.Discover(transport.GousbEnumerator{})
	if err != nil {
		return nil, fmt.Errorf("usb discovery: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no known MTK device found on USB; pass -serial to use a serial backend")
	}
	return &transport.Port{
		VendorID:  descriptor.VendorID,
		ProductID: descriptor.ProductID,
		Mode:      mode,
		Backend:   transport.NewUSBBackend(descriptor.VendorID, descriptor.ProductID),
	}, nil
}

func main() {
	flag.Parse()

	if *daFilePath == "" {
		log.Fatal("-da-file is required")
	}
	daBytes, err := os.ReadFile(*daFilePath)
	if err != nil {
		log.Fatalf("read da file: %v", err)
	}
	daFile, err := da.Parse(daBytes)
	if err != nil {
		log.Fatalf("parse da file: %v", err)
	}

	port, err := openPort()
	if err != nil {
		log.Fatalf("open port: %v", err)
	}

	dev := device.New(port, daFile)
	defer dev.Close()

	grpcServer := grpc.NewServer()
	penumbrapb.RegisterPenumbraServiceServer(grpcServer, rpc.NewServer(dev))
	reflection.Register(grpcServer)

	addr := fmt.Sprintf("0.0.0.0:%d", *listenPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down penumbra-server")
		grpcServer.GracefulStop()
	}()

	log.Printf("penumbra-server listening on %s", addr)
	if err := grpcServer.Serve(listener); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
