package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/studiowebux/loadhook/internal/executor"
	"github.com/studiowebux/loadhook/internal/hooks"
	"github.com/studiowebux/loadhook/internal/types"
)

// OnceOptions contains options for a single traced iteration
type OnceOptions struct {
	Hooks  HookOptions
	Logger *logrus.Logger
	Out    io.Writer
}

// Once runs setup and one iteration on a single worker, printing the request
// the hooks produced and the response handed back to them.
func Once(ctx context.Context, cfg types.RunConfig, opts OnceOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	factory, _, shared, err := BuildHooks(ctx, opts.Hooks)
	if err != nil {
		return err
	}
	h, err := factory(0)
	if err != nil {
		return err
	}

	client, err := executor.NewClient(&cfg)
	if err != nil {
		return err
	}

	var log logrus.FieldLogger
	if opts.Logger != nil {
		log = opts.Logger
	}
	env := hooks.NewEnv(0, cfg.RequestConfig, shared, log)
	session := hooks.NewSession(env, h)
	if err := session.Setup(); err != nil {
		return err
	}

	req, err := session.Begin()
	if err != nil {
		return err
	}

	var sb strings.Builder
	writeRequest(&sb, req)

	res, doErr := executor.Do(ctx, client, req)
	if doErr != nil {
		_ = session.Abort()
		sb.WriteString(fmt.Sprintf("\n%sError: %s%s\n", colorRed, doErr, colorReset))
		fmt.Fprint(out, sb.String())
		return doErr
	}

	sb.WriteString("\n")
	writeResponse(&sb, res)
	fmt.Fprint(out, sb.String())

	if err := session.Complete(res); err != nil {
		return err
	}
	if !cfg.IsExpectedStatus(res.Status) {
		return fmt.Errorf("unexpected status %d", res.Status)
	}
	return nil
}
