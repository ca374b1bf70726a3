package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/server"
)

type ServeCommand struct {
	Addr string `short:"a" long:"addr" env:"LISTEN_ADDRESS" description:"Address to listen on" default:"0.0.0.0"`
	Port int    `short:"p" long:"port" env:"LISTEN_PORT"    description:"Port to listen on"    default:"8080"`
}

func (c *ServeCommand) Execute([]string) error {
	srvCtx := server.NewServerContext(app.cfg, app.reg, app.client)

	listenAddr := fmt.Sprintf("%s:%d", c.Addr, c.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-app.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	log.Info().
		Str("addr", listenAddr).
		Int("datasets_loaded", len(app.cfg.Datasets)).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("Web server stopped")

	return nil
}
