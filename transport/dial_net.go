package transport

import (
	"context"
	"io"
	"net"
)

func dialNet(ctx context.Context, proto, addr string) (io.ReadWriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, proto, addr)
}

func DialTCP(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	return dialNet(ctx, "tcp", addr)
}

func DialUnix(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	return dialNet(ctx, "unix", path)
}
