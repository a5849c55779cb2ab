package statusapi

import (
	"context"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/rift-backfill/internal/platform/logging"
	"github.com/riskibarqy/rift-backfill/internal/usecase"
	"github.com/valyala/fasthttp"
)

// Server exposes liveness and run progress while a backfill is running. It
// is optional: the binaries only start it when STATUS_ADDR is set.
type Server struct {
	progress *usecase.Progress
	logger   *logging.Logger
	srv      *fasthttp.Server
}

func NewServer(progress *usecase.Progress, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{progress: progress, logger: logger}
	s.srv = &fasthttp.Server{
		Handler:      s.handle,
		Name:         "rift-backfill-status",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start serves on addr in the background. A status server that cannot listen
// is logged and forgotten, it never fails the run itself.
func (s *Server) Start(addr string) {
	go func() {
		s.logger.Info("status server starting", "addr", addr)
		if err := s.srv.ListenAndServe(addr); err != nil {
			s.logger.Error("status server stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"ok"}`)
	case "/status":
		s.writeStatus(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) writeStatus(ctx *fasthttp.RequestCtx) {
	body, err := sonic.Marshal(s.progress.Snapshot())
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
