package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/studiowebux/loadhook/internal/mock"
)

// ServeOptions contains options for the target server
type ServeOptions struct {
	ConfigFile string // routes file, built-in routes when empty
	Addr       string
	Token      string
	Logger     *logrus.Logger
	Out        io.Writer
}

// Serve runs the target server until ctx is done or an interrupt arrives
func Serve(ctx context.Context, opts ServeOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	config := mock.DefaultConfig()
	workdir := "."
	if opts.ConfigFile != "" {
		loaded, err := mock.LoadConfig(opts.ConfigFile)
		if err != nil {
			return err
		}
		config = loaded
		workdir = filepath.Dir(opts.ConfigFile)
	}
	if opts.Addr != "" {
		config.Addr = opts.Addr
	}
	if opts.Token != "" {
		config.Token = opts.Token
	}

	var log logrus.FieldLogger
	if opts.Logger != nil {
		log = opts.Logger
	}
	server, err := mock.NewServer(config, workdir, log)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Target listening on %s (token %s)\n", server.GetAddress(), server.Token())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Served %d requests\n", server.Requests())
	return nil
}
