package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

const defaultSerialReadTimeout = 300 * time.Millisecond

// SerialSource 从串口读卡器读取标签，每个标签以 CR 或 LF 结束
type SerialSource struct {
	portName string
	baudRate int
	open     func(name string, mode *serial.Mode) (serial.Port, error)
	logger   *slog.Logger
}

func NewSerialSource(portName string, baudRate int, log *slog.Logger) *SerialSource {
	if log == nil {
		log = slog.Default().With("component", "reader.serial")
	}
	return &SerialSource{
		portName: portName,
		baudRate: baudRate,
		open:     serial.Open,
		logger:   log,
	}
}

func (s *SerialSource) Read(ctx context.Context, out chan<- string) error {
	if s.portName == "" {
		return errors.New("serial port is empty")
	}
	if s.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", s.baudRate)
	}

	port, err := s.open(s.portName, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("open serial port %q: %w", s.portName, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	s.logger.Info("Reading RFID tags", "port", s.portName, "baud_rate", s.baudRate)

	return NewLineSource(&ctxReader{ctx: ctx, r: port}).Read(ctx, out)
}

// ctxReader 把读超时变成对 ctx 的轮询
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	for {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
