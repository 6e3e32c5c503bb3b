// Package server exposes the prediction service over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/pkg/log"
	"github.com/YuminosukeSato/heartpredict/service"
)

// PredictPath is the only route.
const PredictPath = "/predict"

// RestServer implements the REST-ful prediction API.
type RestServer struct {
	Service    *service.Service
	Logger     log.Logger
	Addr       string
	WebService *restful.WebService
	container  *restful.Container
}

// NewRestServer creates a server for svc. Call Handler or Serve to use it.
func NewRestServer(svc *service.Service, logger log.Logger, addr string) *RestServer {
	s := &RestServer{
		Service:    svc,
		Logger:     logger,
		Addr:       addr,
		WebService: new(restful.WebService),
	}
	s.CreateWebService()
	s.container = restful.NewContainer()
	s.container.Add(s.WebService)

	// 任意のオリジンを許可する。プリフライトもここで応答する
	cors := restful.CrossOriginResourceSharing{
		AllowedHeaders: []string{restful.HEADER_ContentType, restful.HEADER_Accept},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		CookiesAllowed: false,
		Container:      s.container,
	}
	s.container.Filter(cors.Filter)
	s.container.Filter(s.LogFilter)
	return s
}

// CreateWebService registers the routes.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)

	ws.Route(ws.POST(PredictPath).To(s.predict).
		Doc("Classify one patient record with the serving model.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"predict"}).
		Reads(map[string]float64{}).
		Writes(service.Prediction{}).
		Returns(http.StatusOK, "OK", service.Prediction{}).
		Returns(http.StatusBadRequest, "missing, unknown or non-numeric feature", nil).
		Returns(http.StatusInternalServerError, "model failure", nil))
}

// Handler returns the container serving the API.
func (s *RestServer) Handler() http.Handler {
	return s.container
}

// Serve listens on Addr until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *RestServer) Serve(ctx context.Context, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.container,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("Start http server", log.AddrKey, s.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen")
	}
	return nil
}

// LogFilter logs every request with its status and latency.
func (s *RestServer) LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	s.Logger.Debug("Request served",
		log.MethodKey, req.Request.Method,
		log.PathKey, req.Request.URL.Path,
		log.StatusKey, resp.StatusCode(),
		log.RemoteAddrKey, req.Request.RemoteAddr,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
}

func (s *RestServer) predict(request *restful.Request, response *restful.Response) {
	var features map[string]any
	if err := request.ReadEntity(&features); err != nil {
		s.BadRequest(response, errors.NewFeatureError("body", "must be a JSON object of feature values: "+err.Error()))
		return
	}
	prediction, err := s.Service.Predict(features)
	if err != nil {
		if errors.IsBadInput(err) {
			s.BadRequest(response, err)
		} else {
			s.InternalServerError(response, err)
		}
		return
	}
	s.Ok(response, prediction)
}

// BadRequest returns a bad request error.
func (s *RestServer) BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	s.Logger.Warn("Bad request", log.ErrAttrKey, err)
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		s.Logger.Error("Failed to write error", log.ErrAttrKey, err)
	}
}

// InternalServerError returns a internal server error.
func (s *RestServer) InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	s.Logger.Error("Internal server error", log.ErrAttrKey, err)
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		s.Logger.Error("Failed to write error", log.ErrAttrKey, err)
	}
}

// Ok sends the content as JSON to the client.
func (s *RestServer) Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		s.Logger.Error("Failed to write json", log.ErrAttrKey, err)
	}
}
