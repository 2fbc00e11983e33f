// Package server is the HTTP face of the kiosk scanner.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jtejido/kioskscanner/internal/history"
	"github.com/jtejido/kioskscanner/internal/service"
)

const (
	serviceName  = "kiosk-scanner"
	mimeCBOR     = "application/cbor"
	apiKeyHeader = "X-API-Key"
)

// Scanner is what the HTTP layer needs from the capture service.
type Scanner interface {
	RequestCapture(ctx context.Context, req service.CaptureRequest) (*service.CaptureResult, error)
	Health() service.Health
	Status() *service.Status
	Reload() (*service.LibraryInfo, error)
	History() []history.Entry
	ClearHistory() int
}

// Config configures the HTTP server.
type Config struct {
	CORSOrigins []string
	APIKey      string
	ReadTimeout time.Duration
	// AccessLog receives one line per request.
	AccessLog io.Writer
	Logger    *slog.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Clock   clockwork.Clock
}

// Server wraps the Fiber app.
type Server struct {
	app     *fiber.App
	scanner Scanner
	log     *slog.Logger
	clock   clockwork.Clock
}

// New builds the app and registers every route.
func New(sc Scanner, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	s := &Server{scanner: sc, log: cfg.Logger, clock: cfg.Clock}

	s.app = fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	if cfg.AccessLog != nil {
		s.app.Use(logger.New(logger.Config{
			Format:        "${time} ${locals:requestid} ${status} ${latency} ${method} ${path}\n",
			Output:        cfg.AccessLog,
			DisableColors: true,
		}))
	}
	origins := strings.Join(cfg.CORSOrigins, ",")
	if origins == "" {
		origins = "*"
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, " + apiKeyHeader,
	}))

	s.app.Get("/health", s.health)
	api := s.app.Group("/api")
	api.Get("/health", s.health)

	if cfg.APIKey != "" {
		api.Use(keyauth.New(keyauth.Config{
			KeyLookup: "header:" + apiKeyHeader,
			Validator: func(_ *fiber.Ctx, key string) (bool, error) {
				if key != cfg.APIKey {
					return false, keyauth.ErrMissingOrMalformedAPIKey
				}
				return true, nil
			},
			ErrorHandler: func(*fiber.Ctx, error) error {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing API key")
			},
		}))
	}

	scan := api.Group("/scanner")
	scan.Get("/status", s.status)
	scan.Post("/capture", s.capture)
	scan.Post("/reload", s.reload)
	scan.Get("/history", s.history)
	scan.Delete("/history", s.clearHistory)
	scan.Get("/codes", s.codes)

	if cfg.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}
	return s
}

// App exposes the Fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves plain HTTP on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info("server.listening", "addr", addr, "tls", false)
	return s.app.Listen(addr)
}

// ListenTLS serves HTTPS with the given certificate pair, or with an
// ephemeral self-signed certificate when the files are missing.
func (s *Server) ListenTLS(addr, certFile, keyFile string) error {
	cert, generated, err := TLSCertificate(certFile, keyFile, s.clock.Now())
	if err != nil {
		return err
	}
	if generated {
		s.log.Warn("server.tls.self_signed", "cert_file", certFile, "key_file", keyFile,
			"not_after", cert.Leaf.NotAfter)
	}
	s.log.Info("server.listening", "addr", addr, "tls", true)
	return s.app.ListenTLSWithCertificate(addr, cert)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	h := s.scanner.Health()
	return c.JSON(HealthResponse{
		Status:           "healthy",
		Service:          serviceName,
		Timestamp:        s.clock.Now().UTC(),
		LibrariesLoaded:  h.LibrariesLoaded,
		DeviceEnumerable: h.DeviceEnumerable,
		Busy:             h.Busy,
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	return c.JSON(s.scanner.Status())
}

func (s *Server) capture(c *fiber.Ctx) error {
	var req service.CaptureRequest
	if len(c.Body()) > 0 {
		var err error
		if strings.HasPrefix(string(c.Request().Header.ContentType()), mimeCBOR) {
			err = cbor.Unmarshal(c.Body(), &req)
		} else {
			err = c.BodyParser(&req)
		}
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
		}
	}

	res, err := s.scanner.RequestCapture(c.UserContext(), req)
	if err != nil {
		return err
	}

	out := CaptureResponse{
		Status:         "ok",
		Success:        true,
		Message:        "Fingerprint captured successfully",
		CaptureID:      res.ID,
		Finger:         res.Finger,
		Format:         string(res.Format),
		MimeType:       res.MimeType,
		Sample:         res.Sample,
		Width:          res.Width,
		Height:         res.Height,
		Resolution:     res.Resolution,
		Quality:        res.Quality,
		Score:          res.Score,
		Template:       res.Template,
		TemplateFormat: res.TemplateFormat,
		Attempts:       res.Attempts,
		Elapsed:        res.Elapsed.String(),
		Timestamp:      res.CapturedAt.UTC(),
		Device:         res.Device.Name,
	}
	if wantsCBOR(c) {
		return sendCBOR(c, fiber.StatusOK, out)
	}
	out.Data = &CaptureData{
		ImageData: dataURL(res),
		Finger:    res.Finger,
		Timestamp: out.Timestamp,
	}
	return c.JSON(out)
}

func (s *Server) reload(c *fiber.Ctx) error {
	info, err := s.scanner.Reload()
	if err != nil {
		return err
	}
	return c.JSON(ReloadResponse{Status: "ok", Libraries: info})
}

func (s *Server) history(c *fiber.Ctx) error {
	entries := s.scanner.History()
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(HistoryResponse{Captures: entries})
}

func (s *Server) clearHistory(c *fiber.Ctx) error {
	return c.JSON(ClearHistoryResponse{Status: "ok", Cleared: s.scanner.ClearHistory()})
}

func (s *Server) codes(c *fiber.Ctx) error {
	return c.JSON(codeTable())
}

func wantsCBOR(c *fiber.Ctx) bool {
	return c.Accepts(fiber.MIMEApplicationJSON, mimeCBOR) == mimeCBOR
}

func sendCBOR(c *fiber.Ctx, status int, v any) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, mimeCBOR)
	return c.Status(status).Send(b)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, body := errorResponse(err)
	if rid, ok := c.Locals("requestid").(string); ok {
		body.RequestID = rid
	}
	if status >= fiber.StatusInternalServerError {
		s.log.Error("http.request.failed", "path", c.Path(), "status", status, "error", err)
	} else {
		s.log.Info("http.request.rejected", "path", c.Path(), "status", status, "kind", body.Kind)
	}
	if wantsCBOR(c) {
		return sendCBOR(c, status, body)
	}
	return c.Status(status).JSON(body)
}
