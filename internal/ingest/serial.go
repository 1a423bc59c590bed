package ingest

import (
	"bufio"
	"context"
	"log/slog"
	"strings"

	"go.bug.st/serial"

	"roommon/internal/config"
)

// SerialSource reads newline-delimited samples from the sensor board. On
// read or open failure it reconnects with bounded exponential backoff and
// reports ErrSourceUnavailable once the consecutive-failure budget is spent.
type SerialSource struct {
	cfg      config.SerialConfig
	logger   *slog.Logger
	port     serial.Port
	reader   *bufio.Reader
	failures int
}

func NewSerialSource(cfg config.SerialConfig, logger *slog.Logger) *SerialSource {
	return &SerialSource{cfg: cfg, logger: logger}
}

func (s *SerialSource) ReadLine(ctx context.Context) (string, error) {
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if s.port == nil {
			if err := s.reconnect(ctx); err != nil {
				return "", err
			}
		}
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.disconnect()
			s.failures++
			if s.failures >= s.cfg.MaxFailures {
				if s.logger != nil {
					s.logger.Error("serial source giving up", "port", s.cfg.Port, "consecutive_failures", s.failures)
				}
				return "", ErrSourceUnavailable
			}
			if s.logger != nil {
				s.logger.Warn("serial read failed, reconnecting", "port", s.cfg.Port, "err", err, "consecutive_failures", s.failures)
			}
			continue
		}
		s.failures = 0
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		return trim, nil
	}
}

func (s *SerialSource) reconnect(ctx context.Context) error {
	backoff := s.cfg.Backoff
	for {
		port, err := serial.Open(s.cfg.Port, &serial.Mode{BaudRate: s.cfg.BaudRate})
		if err == nil {
			if s.logger != nil {
				s.logger.Info("serial port opened", "port", s.cfg.Port, "baud", s.cfg.BaudRate)
			}
			s.port = port
			s.reader = bufio.NewReader(port)
			return nil
		}
		s.failures++
		if s.failures >= s.cfg.MaxFailures {
			if s.logger != nil {
				s.logger.Error("serial open giving up", "port", s.cfg.Port, "err", err, "consecutive_failures", s.failures)
			}
			return ErrSourceUnavailable
		}
		// Escalate once the port has been down for a while.
		if s.logger != nil {
			if s.failures > s.cfg.MaxFailures/2 {
				s.logger.Error("serial open failed", "port", s.cfg.Port, "err", err, "retry_in", backoff, "consecutive_failures", s.failures)
			} else {
				s.logger.Warn("serial open failed", "port", s.cfg.Port, "err", err, "retry_in", backoff, "consecutive_failures", s.failures)
			}
		}
		if !BackoffSleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func (s *SerialSource) disconnect() {
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
		s.reader = nil
	}
}

func (s *SerialSource) Close() error {
	s.disconnect()
	return nil
}
