// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/kantama/portal/internal/config"
)

var errTLSPair = errors.New("tls-cert and tls-key must be set together")

// setupTLS loads the configured certificate. A nil config means plain HTTP
// behind a TLS-terminating proxy.
func setupTLS(cfg *config.ServerConfig) (*tls.Config, error) {
	certFile, keyFile := cfg.TLSCertFile, cfg.TLSKeyFile
	switch {
	case certFile == "" && keyFile == "":
		if !config.IsLocalhost(cfg.Host) {
			slog.Info("TLS mode: upstream (plain HTTP)")
		}
		return nil, nil
	case certFile == "" || keyFile == "":
		return nil, errTLSPair
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	slog.Info("TLS mode: manual", "cert", certFile, "key", keyFile)
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}
